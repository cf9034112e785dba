package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// idLocks serialisiert Mutationen pro Paper-id. Wartende Aufrufer bekommen
// die Sperre in Ankunftsreihenfolge; wer länger als maxWait wartet, erhält
// ErrConflict und soll erneut versuchen. Die Einträge werden nicht
// evakuiert: der Korpus ist klein und die Sperren sind je ein Kanal.
type idLocks struct {
	mu      sync.Mutex
	locks   map[uuid.UUID]chan struct{}
	maxWait time.Duration
}

func newIDLocks(maxWait time.Duration) *idLocks {
	return &idLocks{
		locks:   make(map[uuid.UUID]chan struct{}),
		maxWait: maxWait,
	}
}

// acquire nimmt die Sperre für id und gibt die Freigabefunktion zurück.
func (l *idLocks) acquire(ctx context.Context, id uuid.UUID) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[id] = ch
	}
	l.mu.Unlock()

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, ErrConflict
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
