package rpc

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"mercator-hq/saturn/pkg/protocol/legacy"
	"mercator-hq/saturn/pkg/wire"
)

// Lockstep is a protocol version 2 session: strictly one message in
// flight. The router uses Roundtrip; the worker side uses Recv and Send
// from its serve loop.
type Lockstep struct {
	mu        sync.Mutex
	transport io.ReadWriteCloser
	limits    wire.Limits
	closeOnce sync.Once
	done      chan struct{}
}

// NewLockstep wraps an already-handshaken version 2 transport.
func NewLockstep(transport io.ReadWriteCloser, limits wire.Limits) *Lockstep {
	return &Lockstep{transport: transport, limits: limits, done: make(chan struct{})}
}

// Done is closed when the session is closed.
func (l *Lockstep) Done() <-chan struct{} { return l.done }

// Close tears the session down.
func (l *Lockstep) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.transport.Close()
	})
	return err
}

// Send writes one message.
func (l *Lockstep) Send(msg legacy.Message) error {
	buf, err := legacy.Encode(msg)
	if err != nil {
		return err
	}
	if nc, ok := l.transport.(net.Conn); ok {
		_ = nc.SetWriteDeadline(time.Now().Add(WriteTimeout))
	}
	return wire.WriteFrame(l.transport, buf, l.limits)
}

// Recv reads one message.
func (l *Lockstep) Recv() (legacy.Message, error) {
	if nc, ok := l.transport.(net.Conn); ok {
		_ = nc.SetReadDeadline(time.Now().Add(ReadIdleTimeout))
	}
	buf, err := wire.ReadFrame(l.transport, l.limits)
	if err != nil {
		return nil, err
	}
	return legacy.Decode(buf)
}

// Roundtrip sends a request and reads its reply, holding the session
// lock for the whole exchange. An Error reply is returned as an error.
func (l *Lockstep) Roundtrip(msg legacy.Message) (legacy.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.Send(msg); err != nil {
		return nil, err
	}
	reply, err := l.Recv()
	if err != nil {
		return nil, err
	}
	if e, ok := reply.(*legacy.Error); ok {
		return nil, fmt.Errorf("worker error: %s", e.Message)
	}
	return reply, nil
}
