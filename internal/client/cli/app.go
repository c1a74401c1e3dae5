package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/models"
	"github.com/dmitrijs2005/spendsync/internal/client/services"
	"github.com/dmitrijs2005/spendsync/internal/client/syncer"
	"github.com/dmitrijs2005/spendsync/internal/logging"
)

// DefaultIdleAfter is the input pause after which the next command counts
// as the app coming back to the foreground.
const DefaultIdleAfter = 10 * time.Minute

// errNoAttachments is returned by attach and receipt when no bucket is set up.
var errNoAttachments = errors.New("attachments are not configured")

// Syncer is the part of the sync service the CLI drives.
type Syncer interface {
	RunCycle(ctx context.Context, trigger syncer.Trigger) (syncer.Result, error)
	Status(ctx context.Context) syncer.Status
	Online() bool
	OnForeground(ctx context.Context)
}

// Session signs the owner in and out.
type Session interface {
	OwnerID() (string, bool)
	SignIn(ctx context.Context, token string) (string, error)
	SignOut(ctx context.Context) error
}

// Queue exposes outbound queue maintenance.
type Queue interface {
	StuckEntries(ctx context.Context, ownerID string) ([]models.SyncQueueEntry, error)
	PurgeStuck(ctx context.Context, ownerID string) (int64, error)
	RetryStuck(ctx context.Context, ownerID string) (int64, error)
}

// Attachments stores receipt files.
type Attachments interface {
	Upload(ctx context.Context, ownerID, path string) (string, error)
	PresignGet(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

// Deps groups what App needs. Files may be nil; In and Out default to the
// process stdin and stdout.
type Deps struct {
	IdleAfter time.Duration

	Expenses services.ExpenseService
	Sync     Syncer
	Session  Session
	Queue    Queue
	Files    Attachments
	In       io.Reader
	Out      io.Writer
	Logger   logging.Logger
}

type App struct {
	expenses services.ExpenseService
	syncer   Syncer
	session  Session
	queue    Queue
	files    Attachments
	reader   *bufio.Reader
	out      io.Writer
	logger   logging.Logger
	now      func() time.Time

	idleAfter time.Duration
	lastInput time.Time
}

func NewApp(d Deps) *App {
	in := d.In
	if in == nil {
		in = os.Stdin
	}
	out := d.Out
	if out == nil {
		out = os.Stdout
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	idle := d.IdleAfter
	if idle <= 0 {
		idle = DefaultIdleAfter
	}
	return &App{
		expenses: d.Expenses,
		syncer:   d.Sync,
		session:  d.Session,
		queue:    d.Queue,
		files:    d.Files,
		reader:   bufio.NewReader(in),
		out:      out,
		logger:   logger.With("module", "cli"),
		now:      time.Now,

		idleAfter: idle,
	}
}

// Run starts the REPL and blocks until the user exits, input ends, or ctx
// is cancelled.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to spendsync (type 'help' for commands)")
	a.lastInput = a.now()
	if a.isLoggedIn() {
		if _, err := a.expenses.List(ctx); err != nil {
			a.logger.Warn(ctx, "initial load failed", "error", err)
		}
	}
	runREPL(ctx, a, a.getStatus, a.reader, a.out)
}

func (a *App) isLoggedIn() bool {
	_, ok := a.session.OwnerID()
	return ok
}

func (a *App) getStatus() string {
	s := "offline"
	if a.syncer.Online() {
		s = "online"
	}
	if owner, ok := a.session.OwnerID(); ok {
		s = owner + " " + s
	}
	return fmt.Sprintf("(%s)", s)
}
