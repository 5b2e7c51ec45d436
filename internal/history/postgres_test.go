package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow implements pgx.Row.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows over in-memory data.
type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *int64:
			*d = v.(int64)
		case *bool:
			*d = v.(bool)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements DB.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	var gotSQL string
	db := &mockDB{execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
		gotSQL = sql
		return pgconn.CommandTag{}, nil
	}}
	if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if gotSQL != Schema {
		t.Error("Migrate did not execute Schema")
	}

	db.execFunc = func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	err := NewPostgresStore(db).Migrate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "history: migrate") {
		t.Errorf("err = %v, want wrapped migrate error", err)
	}
}

func TestPostgresStore_Append(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	rec := Record{
		ID: "r1", Mode: "explore", ChatID: "c1", ConversationID: "v1", Status: "completed",
		Reply: "这是一棵树", AudioBytes: 32000, AudioMIME: "audio/ogg", AudioLen: 1500 * time.Millisecond,
		HasImage: true, StartedAt: started, Duration: 2 * time.Second,
	}

	var (
		gotSQL  string
		gotArgs []any
	)
	db := &mockDB{execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		gotSQL, gotArgs = sql, args
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}}
	if err := NewPostgresStore(db).Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !strings.Contains(gotSQL, "ON CONFLICT (id) DO NOTHING") {
		t.Errorf("insert is not idempotent: %s", gotSQL)
	}
	if len(gotArgs) != 16 {
		t.Fatalf("got %d args, want 16", len(gotArgs))
	}
	if gotArgs[0] != "r1" || gotArgs[5] != "这是一棵树" {
		t.Errorf("args = %v", gotArgs)
	}
	if gotArgs[10] != int64(1500) || gotArgs[15] != int64(2000) {
		t.Errorf("durations not stored as milliseconds: audio=%v duration=%v", gotArgs[10], gotArgs[15])
	}
	if gotArgs[14] != started {
		t.Errorf("started_at = %v", gotArgs[14])
	}
}

func TestPostgresStore_AppendError(t *testing.T) {
	t.Parallel()

	db := &mockDB{execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("connection reset")
	}}
	err := NewPostgresStore(db).Append(context.Background(), Record{ID: "r9"})
	if err == nil || !strings.Contains(err.Error(), "r9") {
		t.Errorf("err = %v, want error naming the record", err)
	}
}

func TestPostgresStore_Recent(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Minute)
	rows := &mockRows{data: [][]any{
		{"r2", "companion", "c2", "v2", "completed", "你好呀", "", "", 16000, "audio/wav", int64(500), false, true, "trace2", t1, int64(900)},
		{"r1", "explore", "", "", "", "", "transport", "backend unavailable", 8000, "audio/wav", int64(250), true, false, "", t0, int64(10)},
	}}
	var gotLimit any
	db := &mockDB{queryFunc: func(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
		gotLimit = args[0]
		return rows, nil
	}}

	recs, err := NewPostgresStore(db).Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if gotLimit != 2 {
		t.Errorf("limit = %v, want 2", gotLimit)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if r := recs[0]; r.ID != "r2" || r.Reply != "你好呀" || !r.Farewell || r.AudioLen != 500*time.Millisecond || r.Duration != 900*time.Millisecond || !r.StartedAt.Equal(t1) {
		t.Errorf("recs[0] = %+v", r)
	}
	if r := recs[1]; r.ErrorKind != "transport" || !r.HasImage || r.TraceID != "" {
		t.Errorf("recs[1] = %+v", r)
	}
}

func TestPostgresStore_RecentErrors(t *testing.T) {
	t.Parallel()

	t.Run("query", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
			return nil, errors.New("boom")
		}}
		if _, err := NewPostgresStore(db).Recent(context.Background(), 5); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("rows", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
			return &mockRows{err: errors.New("stream broke")}, nil
		}}
		_, err := NewPostgresStore(db).Recent(context.Background(), 5)
		if err == nil || !strings.Contains(err.Error(), "stream broke") {
			t.Errorf("err = %v", err)
		}
	})
}

func TestPostgresStore_Ping(t *testing.T) {
	t.Parallel()

	db := &mockDB{queryRowFunc: func(context.Context, string, ...any) pgx.Row {
		return &mockRow{scanFunc: func(dest ...any) error {
			*dest[0].(*int) = 1
			return nil
		}}
	}}
	if err := NewPostgresStore(db).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := NewPostgresStore(&mockDB{}).Ping(context.Background()); err == nil {
		t.Error("expected error when the query fails")
	}
}
