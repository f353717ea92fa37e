package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"busjp/internal/domain"
	"busjp/internal/hub"
	"busjp/internal/shell"
)

type positionResult struct {
	pos domain.LatLng
	err error
}

// wsLocator asks the browser on the other end of a connection for its
// position. Each request carries a fresh id; the browser answers with a
// position or position_error message carrying the same id.
type wsLocator struct {
	client *hub.Client

	mu      sync.Mutex
	pending map[string]chan positionResult
}

func newWSLocator(client *hub.Client) *wsLocator {
	return &wsLocator{
		client:  client,
		pending: make(map[string]chan positionResult),
	}
}

func (l *wsLocator) Locate(ctx context.Context) (domain.LatLng, error) {
	ServerStats.IncLocateRequests()

	id := uuid.New().String()
	ch := make(chan positionResult, 1)

	l.mu.Lock()
	l.pending[id] = ch
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.pending, id)
		l.mu.Unlock()
	}()

	frame, err := hub.Encode(hub.TypeLocate, hub.LocatePayload{RequestID: id})
	if err != nil {
		ServerStats.IncLocateFailures()
		return domain.LatLng{}, err
	}
	if dropped := l.client.Deliver([][]byte{frame}); dropped > 0 {
		ServerStats.IncLocateFailures()
		return domain.LatLng{}, fmt.Errorf("%w: request not delivered", shell.ErrLocationUnavailable)
	}
	ServerStats.AddWSMessagesOut(1)

	select {
	case <-ctx.Done():
		ServerStats.IncLocateFailures()
		return domain.LatLng{}, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			ServerStats.IncLocateFailures()
		}
		return res.pos, res.err
	}
}

// resolve hands a browser answer to the waiting request. Unknown or
// already answered ids are ignored.
func (l *wsLocator) resolve(id string, res positionResult) bool {
	l.mu.Lock()
	ch, ok := l.pending[id]
	if ok {
		delete(l.pending, id)
	}
	l.mu.Unlock()

	if !ok {
		return false
	}
	ch <- res
	return true
}

func (l *wsLocator) succeed(id string, pos domain.LatLng) bool {
	if err := validate.Struct(pos); err != nil {
		return l.resolve(id, positionResult{err: fmt.Errorf("%w: invalid position", shell.ErrLocationUnavailable)})
	}
	return l.resolve(id, positionResult{pos: pos})
}

func (l *wsLocator) fail(id, message string) bool {
	if message == "" {
		return l.resolve(id, positionResult{err: shell.ErrLocationUnavailable})
	}
	return l.resolve(id, positionResult{err: fmt.Errorf("%w: %s", shell.ErrLocationUnavailable, message)})
}

func (l *wsLocator) pendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
