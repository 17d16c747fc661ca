package sink

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	sql  string
	args []any
}

// fakeDB records Exec calls and fails Query.
type fakeDB struct {
	execs   []execCall
	execErr error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql, args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported")
}

func TestJournal_EmitInserts(t *testing.T) {
	db := &fakeDB{}
	j := NewJournal(db)
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return at }

	if err := j.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := j.Emit(context.Background(), decisionOf(4)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(db.execs) != 2 {
		t.Fatalf("exec calls = %d, want 2", len(db.execs))
	}
	if !strings.Contains(db.execs[0].sql, "CREATE TABLE IF NOT EXISTS vehicle_decisions") {
		t.Errorf("first exec is not the schema: %q", db.execs[0].sql)
	}
	args := db.execs[1].args
	want := []any{"kerb-north", 4, "Motorcycle", "positive", int64(14), at}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d = %v, want %v", i, args[i], want[i])
		}
	}
}

func TestJournal_WrapsErrors(t *testing.T) {
	errDB := errors.New("connection reset")
	j := NewJournal(&fakeDB{execErr: errDB})
	if err := j.Emit(context.Background(), decisionOf(1)); !errors.Is(err, errDB) {
		t.Errorf("Emit err = %v, want wrapped errDB", err)
	}
	if err := j.Migrate(context.Background()); !errors.Is(err, errDB) {
		t.Errorf("Migrate err = %v, want wrapped errDB", err)
	}
	if _, err := j.Recent(context.Background(), "kerb-north", 5); err == nil {
		t.Error("Recent: expected error")
	}
	j.Close()
}

func TestJournal_Postgres(t *testing.T) {
	dsn := os.Getenv("TRAFFICEAR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TRAFFICEAR_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration test")
	}
	ctx := context.Background()
	j, err := OpenJournal(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	t.Cleanup(j.Close)

	stream := "test-" + time.Now().Format("150405.000000000")
	for _, c := range []int{0, 2, 1} {
		d := decisionOf(c)
		d.Stream = stream
		if err := j.Emit(ctx, d); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	got, err := j.Recent(ctx, stream, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Label != "Car" || got[1].Label != "Truck" {
		t.Errorf("Recent = %+v, want Car then Truck", got)
	}
}
