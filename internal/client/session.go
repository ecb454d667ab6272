package client

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"opendax/internal/daxerr"
	"opendax/internal/events"
)

// PendingResponse is the payload delivered to a caller awaiting a
// response to a specific request id.
type PendingResponse struct {
	Status  daxerr.Code
	Payload []byte
}

// Session is one connected client's channel pair: a request/response
// path where responses are matched back to their request by a
// monotonically increasing id, and an asynchronous event channel fed by
// the event dispatcher. Grounded on the teacher's SessionManager
// (`models/session.go`), replacing its auth-token/expiry fields with the
// wire protocol's identifier and event-delivery concerns; session IDs use
// `github.com/google/uuid` in place of the teacher's crypto/rand hex
// token generation.
type Session struct {
	ID string

	mu            sync.Mutex
	nextRequestID uint32
	pending       map[uint32]chan PendingResponse
	closed        bool

	events chan events.Notification

	disconnectOnce     sync.Once
	disconnectCallback func()
}

// NewSession creates a Session with an event queue of the given depth.
// disconnectCallback, if non-nil, is invoked exactly once when the
// session is disconnected.
func NewSession(eventQueueDepth int, disconnectCallback func()) *Session {
	return &Session{
		ID:                 uuid.NewString(),
		pending:            make(map[uint32]chan PendingResponse),
		events:             make(chan events.Notification, eventQueueDepth),
		disconnectCallback: disconnectCallback,
	}
}

// NextRequestID returns the next monotonically increasing request id for
// this session's request/response channel.
func (s *Session) NextRequestID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRequestID++
	return s.nextRequestID
}

// AwaitResponse registers requestID as outstanding and returns the
// channel its eventual Resolve call (or Disconnect) will signal on.
func (s *Session) AwaitResponse(requestID uint32) (<-chan PendingResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, daxerr.ErrDisconnected
	}
	ch := make(chan PendingResponse, 1)
	s.pending[requestID] = ch
	return ch, nil
}

// Resolve matches an incoming response to its pending request, waking
// the AwaitResponse caller. It reports whether a waiter was found.
func (s *Session) Resolve(requestID uint32, resp PendingResponse) bool {
	s.mu.Lock()
	ch, ok := s.pending[requestID]
	if ok {
		delete(s.pending, requestID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	ch <- resp
	return true
}

// Notify implements events.Notifier: an event that fired on a tag this
// session is watching is queued onto the session's event channel,
// preserving per-session FIFO delivery order.
func (s *Session) Notify(n events.Notification) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return daxerr.ErrDisconnected
	}
	select {
	case s.events <- n:
		return nil
	default:
		return daxerr.New(daxerr.Overflow, "session event queue is full")
	}
}

// Events returns the channel event_wait reads from.
func (s *Session) Events() <-chan events.Notification { return s.events }

// EventWait blocks the calling session until at least one queued event
// notification is dispatched or timeout elapses, then returns how many
// notifications were drained from the event channel in this call.
// timeout == 0 polls without blocking; a negative timeout is rejected
// with daxerr.ErrBadArg. If the session is disconnected while waiting
// (or already disconnected when called), EventWait wakes with
// daxerr.ErrDisconnected as its cancellation result.
func (s *Session) EventWait(timeout time.Duration) (int, error) {
	if timeout < 0 {
		return 0, daxerr.ErrBadArg
	}

	dispatched := 0

	if timeout == 0 {
		select {
		case n, ok := <-s.events:
			if !ok {
				return 0, daxerr.ErrDisconnected
			}
			_ = n
			dispatched++
		default:
			return 0, nil
		}
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case n, ok := <-s.events:
			if !ok {
				return 0, daxerr.ErrDisconnected
			}
			_ = n
			dispatched++
		case <-timer.C:
			return 0, daxerr.ErrTimeout
		}
	}

	// Drain whatever else is already queued without blocking further,
	// so a burst of events delivered between writes is reported in one
	// dispatched_count rather than requiring one event_wait per event.
	for {
		select {
		case n, ok := <-s.events:
			if !ok {
				return dispatched, daxerr.ErrDisconnected
			}
			_ = n
			dispatched++
		default:
			return dispatched, nil
		}
	}
}

// Disconnect tears the session down: every outstanding AwaitResponse
// caller is woken with a closed channel (read returns the zero value,
// ok=false), the event channel is closed, and the disconnect callback
// fires exactly once.
func (s *Session) Disconnect() {
	s.disconnectOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		pending := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, ch := range pending {
			close(ch)
		}
		close(s.events)

		if s.disconnectCallback != nil {
			s.disconnectCallback()
		}
	})
}
