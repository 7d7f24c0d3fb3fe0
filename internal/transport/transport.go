// Package transport defines the Peer Transport (C11) contract: a
// request/response channel for exchanging signed balance proofs with a
// counterparty, correlated by request id. Wire framing (BTP or otherwise)
// is out of scope; this package only fixes the interface the core drives
// and ships an in-memory reference implementation for tests and local
// multi-agent scenarios.
package transport

import (
	"context"

	"gitlab.com/warrant1/connector/internal/errs"
)

// Ack is the counterparty's response to a sent balance proof.
type Ack struct {
	RequestID string
	Accepted  bool
	Reason    string
}

// Transport is the narrow contract the Channel Manager drives to push a
// freshly-signed balance proof to a peer.
type Transport interface {
	SendBalanceProof(ctx context.Context, peerID string, proofBytes, signature []byte) (Ack, error)
}

// Handler processes an inbound balance proof from a peer and decides
// whether to accept it — typically backed by channel.Manager.ReceivePeerProof.
type Handler func(ctx context.Context, fromPeerID string, proofBytes, signature []byte) (accepted bool, reason string, err error)

var errPeerNotRegistered = errs.New(errs.KindPeerUnknown, "peer has no registered transport handler")
