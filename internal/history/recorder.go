package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/miniexplorer/internal/engine"
)

const (
	defaultQueue  = 32
	appendTimeout = 5 * time.Second
)

// Recorder is an [engine.Observer] that appends every turn summary to a
// [Store]. OnEvent only enqueues; [Recorder.Run] does the writes.
type Recorder struct {
	store Store
	queue chan Record

	mu      sync.Mutex
	dropped int
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder returns a recorder writing to store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, queue: make(chan Record, defaultQueue)}
}

// Store returns the underlying store.
func (r *Recorder) Store() Store { return r.store }

// OnEvent implements [engine.Observer].
func (r *Recorder) OnEvent(ev engine.Event) {
	if ev.Kind != engine.EventTurn || ev.Turn == nil {
		return
	}
	rec := FromSummary(ev.Turn)
	select {
	case r.queue <- rec:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		slog.Warn("history: queue full, dropping turn", "chat_id", rec.ChatID)
	}
}

// Dropped returns how many records were discarded because the queue was full.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Run writes queued records until ctx is done, then flushes what is left.
// Each write has its own timeout and outlives ctx so that a turn finished
// during shutdown is still stored.
func (r *Recorder) Run(ctx context.Context) error {
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case rec := <-r.queue:
			r.append(wctx, rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.queue:
					r.append(wctx, rec)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) append(ctx context.Context, rec Record) {
	ctx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()
	if err := r.store.Append(ctx, rec); err != nil {
		slog.Error("history: append failed", "id", rec.ID, "chat_id", rec.ChatID, "err", err)
	}
}

// Handler serves GET requests with the most recent records as JSON. The
// optional "limit" query parameter caps the count.
func Handler(store Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		limit := 50
		if s := req.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		recs, err := store.Recent(req.Context(), limit)
		if err != nil {
			slog.Error("history: list failed", "err", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []Record{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(recs)
	})
}
