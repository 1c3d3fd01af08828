package transcription

import (
	"context"
	"sync"
	"time"

	"github.com/podscribe/backend/internal/progress"
)

// run is one in-flight transcription for a single audio source. Concurrent
// requests for the same source attach to the ongoing run instead of starting
// redundant work; every attached subscriber receives the full ordered event
// sequence (earlier events are replayed on attach).
type run struct {
	mu      sync.Mutex
	subs    []*progress.Stream
	history []progress.Event
	done    chan struct{}

	watchers int
	cancel   context.CancelFunc
}

func newRun(cancel context.CancelFunc) *run {
	return &run{done: make(chan struct{}), cancel: cancel}
}

// emit records the event and fans it out to all attached subscribers.
func (r *run) emit(ev progress.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	r.history = append(r.history, ev)
	subs := make([]*progress.Stream, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	for _, s := range subs {
		s.Emit(ev)
	}
}

// attach subscribes a stream to the run and replays everything emitted so
// far. When a subscriber's context ends before the run finished its stream is
// detached; the underlying ResponseWriter must not be written once the
// handler has returned. Once the last subscriber is gone the run is
// cancelled: nobody is left listening.
func (r *run) attach(ctx context.Context, s *progress.Stream) {
	r.mu.Lock()
	for _, ev := range r.history {
		s.Emit(ev)
	}
	r.subs = append(r.subs, s)
	r.watchers++
	r.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.detachLocked(s)
			r.watchers--
			abandon := r.watchers == 0
			r.mu.Unlock()
			if abandon {
				r.cancel()
			}
		case <-r.done:
		}
	}()
}

func (r *run) detachLocked(s *progress.Stream) {
	for i, sub := range r.subs {
		if sub == s {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

func (r *run) finish() {
	close(r.done)
}

// inflightRegistry maps a source key to its in-flight run.
type inflightRegistry struct {
	mu   sync.Mutex
	runs map[string]*run
}

func newInflightRegistry() *inflightRegistry {
	return &inflightRegistry{runs: make(map[string]*run)}
}

// begin returns the run for key, creating it if none is in flight. The bool
// reports whether the caller started a new run and owns its execution.
func (g *inflightRegistry) begin(key string, cancel context.CancelFunc) (*run, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.runs[key]; ok {
		return r, false
	}
	r := newRun(cancel)
	g.runs[key] = r
	return r, true
}

func (g *inflightRegistry) release(key string, r *run) {
	g.mu.Lock()
	if g.runs[key] == r {
		delete(g.runs, key)
	}
	g.mu.Unlock()
	r.finish()
}
