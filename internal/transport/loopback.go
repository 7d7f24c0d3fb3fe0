package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"gitlab.com/warrant1/connector/internal/errs"
)

// Loopback is an in-memory Transport that dispatches directly to a
// registered peer's Handler, correlating each call with a fresh request
// id. It never crosses a process boundary; tests and local multi-agent
// scenarios register each simulated peer's handler and call
// SendBalanceProof as if it were a real wire round trip.
type Loopback struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewLoopback returns an empty Loopback with no registered peers.
func NewLoopback() *Loopback {
	return &Loopback{handlers: make(map[string]Handler)}
}

// Register binds peerID to handler, so a subsequent SendBalanceProof
// addressed to peerID is delivered to it.
func (l *Loopback) Register(peerID string, handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[peerID] = handler
}

// Deregister removes peerID's handler.
func (l *Loopback) Deregister(peerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, peerID)
}

// SendBalanceProof delivers proofBytes/signature to peerID's registered
// handler and returns its ack, tagged with a fresh correlation id. The call
// carries no sender id, so the handler receives peerID itself as its
// fromPeerID argument.
func (l *Loopback) SendBalanceProof(ctx context.Context, peerID string, proofBytes, signature []byte) (Ack, error) {
	l.mu.RLock()
	handler, ok := l.handlers[peerID]
	l.mu.RUnlock()
	if !ok {
		return Ack{}, errPeerNotRegistered
	}

	requestID := uuid.NewString()
	accepted, reason, err := handler(ctx, peerID, proofBytes, signature)
	if err != nil {
		return Ack{RequestID: requestID}, errs.Wrap(errs.KindTransportRejected, "peer handler error", err)
	}
	return Ack{RequestID: requestID, Accepted: accepted, Reason: reason}, nil
}
