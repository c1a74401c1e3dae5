package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/models"
	"github.com/dmitrijs2005/spendsync/internal/client/services"
	"github.com/dmitrijs2005/spendsync/internal/client/syncer"
	"github.com/dmitrijs2005/spendsync/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpenses struct {
	services.ExpenseService

	view      []models.ExpenseRecord
	added     []models.ExpenseData
	remote    *models.ExpenseData
	mutation  services.Mutation
	updatedID string
	patch     models.ExpensePatch
	deleted   string
	lists     int
	err       error
}

func (f *fakeExpenses) List(context.Context) ([]models.ExpenseRecord, error) {
	f.lists++
	return f.view, f.err
}

func (f *fakeExpenses) Snapshot() []models.ExpenseRecord { return f.view }

func (f *fakeExpenses) Add(_ context.Context, d models.ExpenseData) (*models.ExpenseRecord, error) {
	f.added = append(f.added, d)
	if f.err != nil {
		return nil, f.err
	}
	return &models.ExpenseRecord{ID: "new-id", Amount: d.Amount, Category: d.Category}, nil
}

func (f *fakeExpenses) AddRemoteFirst(_ context.Context, d models.ExpenseData) services.Mutation {
	f.remote = &d
	return f.mutation
}

func (f *fakeExpenses) Update(_ context.Context, id string, p models.ExpensePatch) (*models.ExpenseRecord, error) {
	f.updatedID, f.patch = id, p
	return &models.ExpenseRecord{ID: id}, f.err
}

func (f *fakeExpenses) Delete(_ context.Context, id string) error {
	f.deleted = id
	return f.err
}

type fakeSyncer struct {
	online  bool
	status  syncer.Status
	result  syncer.Result
	err     error
	trigger []syncer.Trigger

	foreground int
}

func (f *fakeSyncer) RunCycle(_ context.Context, t syncer.Trigger) (syncer.Result, error) {
	f.trigger = append(f.trigger, t)
	return f.result, f.err
}
func (f *fakeSyncer) Status(context.Context) syncer.Status { return f.status }
func (f *fakeSyncer) Online() bool                         { return f.online }
func (f *fakeSyncer) OnForeground(context.Context)         { f.foreground++ }

type fakeSession struct {
	owner     string
	signInErr error
	token     string
}

func (f *fakeSession) OwnerID() (string, bool) { return f.owner, f.owner != "" }
func (f *fakeSession) SignIn(_ context.Context, token string) (string, error) {
	if f.signInErr != nil {
		return "", f.signInErr
	}
	f.token, f.owner = token, "owner-1"
	return f.owner, nil
}
func (f *fakeSession) SignOut(context.Context) error {
	f.owner = ""
	return nil
}

type fakeQueue struct {
	Queue
	stuck []models.SyncQueueEntry
	n     int64
}

func (f *fakeQueue) StuckEntries(context.Context, string) ([]models.SyncQueueEntry, error) {
	return f.stuck, nil
}
func (f *fakeQueue) PurgeStuck(context.Context, string) (int64, error) { return f.n, nil }
func (f *fakeQueue) RetryStuck(context.Context, string) (int64, error) { return f.n, nil }

type fakeFiles struct {
	uploaded string
	ref      string
}

func (f *fakeFiles) Upload(_ context.Context, owner, path string) (string, error) {
	f.uploaded = owner + ":" + path
	return f.ref, nil
}
func (f *fakeFiles) PresignGet(_ context.Context, ref string, ttl time.Duration) (string, error) {
	return "https://files.example/" + ref + "?ttl=" + ttl.String(), nil
}

type testApp struct {
	*App
	out      *bytes.Buffer
	expenses *fakeExpenses
	syncer   *fakeSyncer
	session  *fakeSession
	queue    *fakeQueue
}

func newTestApp(input string, files Attachments) *testApp {
	ta := &testApp{
		out:      &bytes.Buffer{},
		expenses: &fakeExpenses{},
		syncer:   &fakeSyncer{},
		session:  &fakeSession{owner: "owner-1"},
		queue:    &fakeQueue{},
	}
	ta.App = NewApp(Deps{
		Expenses: ta.expenses,
		Sync:     ta.syncer,
		Session:  ta.session,
		Queue:    ta.queue,
		Files:    files,
		In:       strings.NewReader(input),
		Out:      ta.out,
	})
	ta.App.now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	return ta
}

func lines(l ...string) string { return strings.Join(l, "\n") + "\n" }

func TestAdd_ParsesInput(t *testing.T) {
	a := newTestApp(lines("12.50", "food", "2026-10-01", "lunch"), nil)

	require.NoError(t, a.Add(context.Background()))
	require.Len(t, a.expenses.added, 1)
	d := a.expenses.added[0]
	assert.True(t, d.Amount.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "food", d.Category)
	assert.Equal(t, "2026-10-01", d.OccurredAt.Format(dateLayout))
	require.NotNil(t, d.Notes)
	assert.Equal(t, "lunch", *d.Notes)
	assert.Contains(t, a.out.String(), "Added new-id")
}

func TestAdd_DefaultsDateToNowAndSkipsEmptyNotes(t *testing.T) {
	a := newTestApp(lines("3", "coffee", "", ""), nil)

	require.NoError(t, a.Add(context.Background()))
	d := a.expenses.added[0]
	assert.True(t, d.OccurredAt.Equal(a.now()))
	assert.Nil(t, d.Notes)
}

func TestAdd_RejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"amount":   lines("twelve", "food", "", ""),
		"negative": lines("-1", "food", "", ""),
		"category": lines("1", " ", "", ""),
		"date":     lines("1", "food", "yesterday", ""),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			a := newTestApp(in, nil)
			err := a.Add(context.Background())
			require.ErrorIs(t, err, common.ErrValidation)
			assert.Empty(t, a.expenses.added)
		})
	}
}

func TestAddRemote_ReportsRollback(t *testing.T) {
	a := newTestApp(lines("5", "taxi", "", ""), nil)
	a.expenses.mutation = services.Mutation{Status: services.MutationRolledBack, Reason: common.ErrTransientRemote}

	err := a.AddRemote(context.Background())
	require.ErrorIs(t, err, common.ErrTransientRemote)
	require.NotNil(t, a.expenses.remote)
	assert.Equal(t, "taxi", a.expenses.remote.Category)
}

func TestAddRemote_Applied(t *testing.T) {
	a := newTestApp(lines("5", "taxi", "", ""), nil)
	a.expenses.mutation = services.Mutation{Status: services.MutationApplied, Record: &models.ExpenseRecord{ID: "r9"}}

	require.NoError(t, a.AddRemote(context.Background()))
	assert.Contains(t, a.out.String(), "Added r9")
}

func TestList_MarksUnsynced(t *testing.T) {
	notes := "line one\nline two"
	a := newTestApp("", nil)
	a.expenses.view = []models.ExpenseRecord{
		{ID: "aaa", Amount: decimal.RequireFromString("10"), Category: "food", OccurredAt: a.now(), SyncState: models.SyncStateUnsynced, Notes: &notes},
		{ID: "bbb", Amount: decimal.RequireFromString("2.5"), Category: "bus", OccurredAt: a.now(), SyncState: models.SyncStateSynced},
	}

	require.NoError(t, a.List(context.Background()))
	out := a.out.String()
	assert.Contains(t, out, "10.00")
	assert.Contains(t, out, "2.50")
	assert.Contains(t, out, "line one…")
	assert.NotContains(t, out, "line two")

	for _, l := range strings.Split(out, "\n") {
		if strings.Contains(l, "aaa") {
			assert.True(t, strings.HasPrefix(l, "*"), l)
		}
		if strings.Contains(l, "bbb") {
			assert.False(t, strings.HasPrefix(l, "*"), l)
		}
	}
}

func TestList_Empty(t *testing.T) {
	a := newTestApp("", nil)
	require.NoError(t, a.List(context.Background()))
	assert.Contains(t, a.out.String(), "No expenses")
}

func TestEdit_OnlyChangedFields(t *testing.T) {
	a := newTestApp(lines("", "travel", "", "-"), nil)
	a.expenses.view = []models.ExpenseRecord{{ID: "abc-123", Amount: decimal.NewFromInt(1), Category: "food", OccurredAt: a.now()}}

	require.NoError(t, a.Edit(context.Background(), "abc"))
	assert.Equal(t, "abc-123", a.expenses.updatedID)
	assert.Nil(t, a.expenses.patch.Amount)
	assert.Nil(t, a.expenses.patch.OccurredAt)
	require.NotNil(t, a.expenses.patch.Category)
	assert.Equal(t, "travel", *a.expenses.patch.Category)
	require.NotNil(t, a.expenses.patch.Notes)
	assert.Equal(t, "", *a.expenses.patch.Notes)
}

func TestEdit_NothingToChange(t *testing.T) {
	a := newTestApp(lines("", "", "", ""), nil)
	a.expenses.view = []models.ExpenseRecord{{ID: "abc", OccurredAt: a.now()}}

	require.NoError(t, a.Edit(context.Background(), "abc"))
	assert.Empty(t, a.expenses.updatedID)
	assert.Contains(t, a.out.String(), "Nothing to change")
}

func TestFindRecord(t *testing.T) {
	a := newTestApp("", nil)
	a.expenses.view = []models.ExpenseRecord{{ID: "ab1"}, {ID: "ab2"}, {ID: "c"}}

	_, err := a.findRecord("zz")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = a.findRecord("ab")
	require.ErrorContains(t, err, "ambiguous")

	r, err := a.findRecord("ab2")
	require.NoError(t, err)
	assert.Equal(t, "ab2", r.ID)
}

func TestDelete_PromptsForID(t *testing.T) {
	a := newTestApp(lines("r1"), nil)
	require.NoError(t, a.Delete(context.Background(), ""))
	assert.Equal(t, "r1", a.expenses.deleted)
}

func TestDelete_PropagatesError(t *testing.T) {
	a := newTestApp("", nil)
	a.expenses.err = common.ErrNotFound
	require.ErrorIs(t, a.Delete(context.Background(), "r1"), common.ErrNotFound)
}

func TestAttachAndReceipt(t *testing.T) {
	files := &fakeFiles{ref: "owner-1/k.png"}
	a := newTestApp("", files)
	a.expenses.view = []models.ExpenseRecord{{ID: "r1", OwnerID: "owner-1"}}

	require.NoError(t, a.Attach(context.Background(), "r1", "/tmp/receipt.png"))
	assert.Equal(t, "owner-1:/tmp/receipt.png", files.uploaded)
	require.NotNil(t, a.expenses.patch.AttachmentRef)
	assert.Equal(t, "owner-1/k.png", *a.expenses.patch.AttachmentRef)

	require.Error(t, a.Receipt(context.Background(), "r1"))

	a.expenses.view[0].AttachmentRef = &files.ref
	require.NoError(t, a.Receipt(context.Background(), "r1"))
	assert.Contains(t, a.out.String(), "https://files.example/owner-1/k.png?ttl=15m0s")
}

func TestAttach_NotConfigured(t *testing.T) {
	a := newTestApp("", nil)
	require.ErrorIs(t, a.Attach(context.Background(), "r1", "x"), errNoAttachments)
	require.ErrorIs(t, a.Receipt(context.Background(), "r1"), errNoAttachments)
}

func TestLogin_SignsInAndSyncs(t *testing.T) {
	old := getSecret
	t.Cleanup(func() { getSecret = old })
	getSecret = func(string, io.Writer) (string, error) { return "tok", nil }

	a := newTestApp("", nil)
	a.session.owner = ""
	a.syncer.result = syncer.Result{Pushed: 1, Pulled: 2}

	require.NoError(t, a.Login(context.Background()))
	assert.Equal(t, "tok", a.session.token)
	assert.Equal(t, []syncer.Trigger{syncer.TriggerStartup}, a.syncer.trigger)
	assert.Equal(t, 1, a.expenses.lists)
	assert.Contains(t, a.out.String(), "Signed in as owner-1")
	assert.Contains(t, a.out.String(), "Pushed 1, pulled 2")
}

func TestLogin_RejectedToken(t *testing.T) {
	old := getSecret
	t.Cleanup(func() { getSecret = old })
	getSecret = func(string, io.Writer) (string, error) { return "bad", nil }

	a := newTestApp("", nil)
	a.session.owner = ""
	a.session.signInErr = common.ErrUnauthorized

	require.ErrorIs(t, a.Login(context.Background()), common.ErrUnauthorized)
	assert.Empty(t, a.syncer.trigger)
}

func TestLogout(t *testing.T) {
	a := newTestApp("", nil)
	require.NoError(t, a.Logout(context.Background()))
	assert.False(t, a.isLoggedIn())
}

func TestSync_PrintsResultAndReloads(t *testing.T) {
	a := newTestApp("", nil)
	a.syncer.result = syncer.Result{Pushed: 2, Pulled: 1, Failed: 1, Errors: []string{"r1: timeout"}}

	require.NoError(t, a.Sync(context.Background()))
	assert.Equal(t, []syncer.Trigger{syncer.TriggerManual}, a.syncer.trigger)
	assert.Equal(t, 1, a.expenses.lists)
	assert.Contains(t, a.out.String(), "Pushed 2, pulled 1, failed 1")
	assert.Contains(t, a.out.String(), "r1: timeout")
}

func TestSync_Offline(t *testing.T) {
	a := newTestApp("", nil)
	a.syncer.result = syncer.Result{Offline: true}

	require.NoError(t, a.Sync(context.Background()))
	assert.Equal(t, 0, a.expenses.lists)
	assert.Contains(t, a.out.String(), "Offline")
}

func TestSync_SignedOutMidCycle(t *testing.T) {
	a := newTestApp("", nil)
	a.syncer.result = syncer.Result{SignedOut: true, Pushed: 1}

	require.NoError(t, a.Sync(context.Background()))
	assert.Equal(t, 0, a.expenses.lists)
	assert.Contains(t, a.out.String(), "Signed out during sync")
	assert.NotContains(t, a.out.String(), "Pushed")
}

func TestSync_StorageError(t *testing.T) {
	a := newTestApp("", nil)
	a.syncer.err = common.NewStorageError("drain", errors.New("locked"))
	require.ErrorIs(t, a.Sync(context.Background()), common.ErrStorage)
}

func TestStatus(t *testing.T) {
	a := newTestApp("", nil)
	a.syncer.status = syncer.Status{Phase: syncer.PhaseError, Online: true, Unsynced: 3, Pending: 4}

	require.NoError(t, a.Status(context.Background()))
	out := a.out.String()
	assert.Contains(t, out, "Sync: error, online")
	assert.Contains(t, out, "Unsynced records: 3, queued changes: 4")
	assert.NotContains(t, out, "Last sync")
}

func TestQueueCommands(t *testing.T) {
	msg := "remote create: timeout"
	a := newTestApp("", nil)
	a.queue.stuck = []models.SyncQueueEntry{{SequenceID: 4, RecordID: "r1", Operation: models.OperationCreate, RetryCount: 3, LastError: &msg}}
	a.queue.n = 1

	require.NoError(t, a.Stuck(context.Background()))
	require.NoError(t, a.Retry(context.Background()))
	require.NoError(t, a.Purge(context.Background()))

	out := a.out.String()
	assert.Contains(t, out, "#4 create r1 (3 attempts): remote create: timeout")
	assert.Contains(t, out, "Reset 1 stuck changes")
	assert.Contains(t, out, "Removed 1 stuck changes")
}

func TestQueueCommands_NeedOwner(t *testing.T) {
	a := newTestApp("", nil)
	a.session.owner = ""
	require.ErrorIs(t, a.Stuck(context.Background()), common.ErrNoOwner)
	require.ErrorIs(t, a.Purge(context.Background()), common.ErrNoOwner)
	require.ErrorIs(t, a.Retry(context.Background()), common.ErrNoOwner)
}

func TestGetStatus(t *testing.T) {
	a := newTestApp("", nil)
	assert.Equal(t, "(owner-1 offline)", a.getStatus())
	a.syncer.online = true
	a.session.owner = ""
	assert.Equal(t, "(online)", a.getStatus())
}

func TestRun_ExitsOnEOF(t *testing.T) {
	a := newTestApp(lines("help"), nil)
	a.Run(context.Background())
	assert.Contains(t, a.out.String(), "Welcome to spendsync")
	assert.Contains(t, a.out.String(), "Available commands")
	assert.Equal(t, 1, a.expenses.lists)
}

func TestAdd_MultilineNotes(t *testing.T) {
	a := newTestApp(lines("7", "books", "", "first", "second", "", "list"), nil)

	require.NoError(t, a.Add(context.Background()))
	require.NotNil(t, a.expenses.added[0].Notes)
	assert.Equal(t, "first\nsecond", *a.expenses.added[0].Notes)

	rest, err := a.reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "list\n", rest)
}

func TestResume_ForegroundAfterIdle(t *testing.T) {
	ctx := context.Background()
	a := newTestApp("", nil)
	clock := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	a.App.now = func() time.Time { return clock }
	a.lastInput = clock

	clock = clock.Add(time.Minute)
	a.resume(ctx)
	assert.Zero(t, a.syncer.foreground, "short pause")

	clock = clock.Add(DefaultIdleAfter)
	a.resume(ctx)
	assert.Equal(t, 1, a.syncer.foreground)

	clock = clock.Add(time.Second)
	a.resume(ctx)
	assert.Equal(t, 1, a.syncer.foreground, "idle timer restarts on input")

	a.session.owner = ""
	clock = clock.Add(2 * DefaultIdleAfter)
	a.resume(ctx)
	assert.Equal(t, 1, a.syncer.foreground, "nobody signed in")
}

func TestRun_IdleInputTriggersForeground(t *testing.T) {
	a := newTestApp(lines("list"), nil)
	a.App.idleAfter = time.Nanosecond
	ticks := 0
	a.App.now = func() time.Time {
		ticks++
		return time.Date(2026, 10, 15, 12, ticks, 0, 0, time.UTC)
	}

	a.Run(context.Background())
	assert.Equal(t, 1, a.syncer.foreground)
}
