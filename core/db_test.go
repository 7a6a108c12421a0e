package core

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

type recordingTx struct {
	committed  bool
	rolledBack bool
}

func (tx *recordingTx) Commit() error   { tx.committed = true; return nil }
func (tx *recordingTx) Rollback() error { tx.rolledBack = true; return nil }

func (*recordingTx) Exec(string, ...interface{}) (sql.Result, error) { return nil, nil }
func (*recordingTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (*recordingTx) Query(string, ...interface{}) (*sql.Rows, error) { return nil, nil }
func (*recordingTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (*recordingTx) QueryRow(string, ...interface{}) *sql.Row                         { return nil }
func (*recordingTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }

type recordingDB struct {
	tx *recordingTx
}

func (db recordingDB) BeginTx(context.Context, *sql.TxOptions) (DBTransactor, error) {
	return db.tx, nil
}

func TestAtomic(t *testing.T) {
	ctx := context.Background()

	t.Run("commits when the unit succeeds", func(t *testing.T) {
		tx := &recordingTx{}
		err := Atomic(ctx, recordingDB{tx: tx}, func(DBTransactor) error { return nil })
		if err != nil {
			t.Fatalf("Atomic() failed: %v", err)
		}
		if !tx.committed || tx.rolledBack {
			t.Errorf("committed = %v, rolledBack = %v; want true, false", tx.committed, tx.rolledBack)
		}
	})

	t.Run("rolls back when the unit fails", func(t *testing.T) {
		boom := errors.New("boom")
		tx := &recordingTx{}
		err := Atomic(ctx, recordingDB{tx: tx}, func(DBTransactor) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("Atomic() error = %v, want %v", err, boom)
		}
		if tx.committed || !tx.rolledBack {
			t.Errorf("committed = %v, rolledBack = %v; want false, true", tx.committed, tx.rolledBack)
		}
	})
}

func TestDBOrdering_String(t *testing.T) {
	tests := []struct {
		ord  DBOrdering
		want string
	}{
		{ord: DBOrdering{Field: "created_at"}, want: "created_at DESC"},
		{ord: DBOrdering{Field: "name", Ascending: true}, want: "name ASC"},
	}
	for _, tt := range tests {
		if got := tt.ord.String(); got != tt.want {
			t.Errorf("DBOrdering.String() = %q, want %q", got, tt.want)
		}
	}
}
