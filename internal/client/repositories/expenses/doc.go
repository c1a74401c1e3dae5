// Package expenses provides the client-side persistence layer for expense
// records.
//
// The Repository interface covers the row-level operations the local store
// composes into its public contract; SQLiteRepository implements it over a
// dbx.DBTX, so the same code runs against *sql.DB or inside a *sql.Tx.
//
// Timestamps are stored as UTC Unix microseconds and amounts as canonical
// decimal text, which keeps ordering and equality exact across platforms.
//
//	repo := expenses.NewSQLiteRepository(db)
//	_ = repo.Insert(ctx, rec)
//	list, _ := repo.ListByOwner(ctx, ownerID)
//	one, _ := repo.GetByID(ctx, id)
package expenses
