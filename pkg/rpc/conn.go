package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	v3 "mercator-hq/saturn/pkg/protocol/v3"
	"mercator-hq/saturn/pkg/telemetry/logging"
	"mercator-hq/saturn/pkg/wire"
)

// Connection timing. Reads are bounded by an idle timeout rather than a
// per-message one because large index transfers legitimately take a
// while; writes must finish promptly or the peer is considered stuck.
const (
	WriteTimeout    = 30 * time.Second
	ReadIdleTimeout = 10 * time.Minute
	CancelTimeout   = 200 * time.Millisecond

	// MaxHelloBytes caps the first frame of a connection, before the
	// negotiated limits apply. 1 MiB.
	MaxHelloBytes = 1 * 1024 * 1024

	// maxPendingNotifications bounds notifications buffered before a
	// handler is registered. Older notifications are dropped first.
	maxPendingNotifications = 16

	writeQueueDepth = 64
)

var (
	ErrClosed       = errors.New("connection closed")
	ErrShuttingDown = errors.New("connection shutting down")
	errProtocol     = errors.New("protocol violation")
)

// Role determines the request id parity of this side of a connection.
type Role int

const (
	RoleRouter Role = iota
	RoleWorker
)

func (r Role) firstRequestID() uint64 {
	if r == RoleRouter {
		return 2
	}
	return 1
}

// RequestHandler serves peer-originated requests. The context is
// cancelled if the peer sends a Cancel for the request or the connection
// closes.
type RequestHandler func(ctx context.Context, req *v3.Request) *v3.Response

type callState struct {
	nextID  uint64
	pending map[uint64]chan *v3.Response
}

// Conn is a multiplexed protocol version 3 connection. It is safe for
// concurrent use; any transport or protocol error closes the whole
// connection and fails every outstanding call.
type Conn struct {
	transport io.ReadWriteCloser
	limits    wire.Limits
	log       *logging.Logger

	calls *guarded[callState]

	writeCh chan []byte

	closeOnce sync.Once
	done      chan struct{}
	closeMu   sync.Mutex
	closeErr  error

	notifyMu      sync.Mutex
	notifyFn      func(*v3.Notification)
	pendingNotifs []*v3.Notification

	handlerMu sync.Mutex
	handler   RequestHandler
	inflight  map[uint64]context.CancelFunc

	wg sync.WaitGroup
}

// NewConn starts the read and write loops over an already-handshaken
// transport. The caller keeps responsibility for handshake framing; see
// RouterHandshake and WorkerHandshake.
func NewConn(transport io.ReadWriteCloser, limits wire.Limits, log *logging.Logger, role Role) *Conn {
	c := &Conn{
		transport: transport,
		limits:    limits,
		log:       log,
		writeCh:   make(chan []byte, writeQueueDepth),
		done:      make(chan struct{}),
		inflight:  make(map[uint64]context.CancelFunc),
	}
	c.calls = newGuarded(callState{
		nextID:  role.firstRequestID(),
		pending: make(map[uint64]chan *v3.Response),
	}, func(err error) {
		log.Error("connection state corrupted, closing", "error", err)
		c.close(err)
	})
	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	return c
}

// Done is closed when the connection is no longer usable.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the close reason, or nil while the connection is live.
func (c *Conn) Err() error {
	select {
	case <-c.done:
	default:
		return nil
	}
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeErr
}

// Close shuts the connection down and fails outstanding calls.
func (c *Conn) Close() error {
	c.close(ErrClosed)
	c.wg.Wait()
	return nil
}

func (c *Conn) close(reason error) {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closeErr = reason
		c.closeMu.Unlock()
		close(c.done)
		c.transport.Close()

		// Fail every pending call and cancel every inflight handler.
		_ = c.calls.with(func(s *callState) {
			for id, ch := range s.pending {
				close(ch)
				delete(s.pending, id)
			}
		})
		c.handlerMu.Lock()
		for _, cancel := range c.inflight {
			cancel()
		}
		c.handlerMu.Unlock()
	})
}

// SetRequestHandler installs the handler for peer-originated requests.
// Requests arriving with no handler installed are answered with an
// unsupported error.
func (c *Conn) SetRequestHandler(h RequestHandler) {
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

// SetNotificationHandler installs the notification handler and delivers
// any notifications that arrived before registration, oldest first.
func (c *Conn) SetNotificationHandler(fn func(*v3.Notification)) {
	c.notifyMu.Lock()
	c.notifyFn = fn
	backlog := c.pendingNotifs
	c.pendingNotifs = nil
	c.notifyMu.Unlock()
	for _, n := range backlog {
		fn(n)
	}
}

// Call sends a request and waits for its response. Cancelling ctx sends
// a best-effort Cancel to the peer and returns ctx.Err(); the peer may
// still have executed the request.
func (c *Conn) Call(ctx context.Context, req *v3.Request) (*v3.Response, error) {
	var (
		id uint64
		ch = make(chan *v3.Response, 1)
	)
	err := c.calls.with(func(s *callState) {
		id = s.nextID
		s.nextID += 2
		s.pending[id] = ch
	})
	if err != nil {
		return nil, err
	}

	buf, err := encodePacket(id, &v3.RpcPayload{Request: req}, c.limits)
	if err != nil {
		c.forgetCall(id)
		return nil, err
	}
	if err := c.enqueue(ctx, buf); err != nil {
		c.forgetCall(id)
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, c.closeReason()
		}
		return resp, nil
	case <-ctx.Done():
		c.forgetCall(id)
		c.sendCancel(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closeReason()
	}
}

// Notify sends a one-way notification.
func (c *Conn) Notify(ctx context.Context, n *v3.Notification) error {
	var id uint64
	if err := c.calls.with(func(s *callState) {
		id = s.nextID
		s.nextID += 2
	}); err != nil {
		return err
	}
	buf, err := encodePacket(id, &v3.RpcPayload{Notification: n}, c.limits)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, buf)
}

func (c *Conn) forgetCall(id uint64) {
	_ = c.calls.with(func(s *callState) {
		if ch, ok := s.pending[id]; ok {
			delete(s.pending, id)
			// Leave the channel open; an unlucky late response finds
			// no registration and is dropped.
			_ = ch
		}
	})
}

func (c *Conn) sendCancel(requestID uint64) {
	var id uint64
	if err := c.calls.with(func(s *callState) {
		id = s.nextID
		s.nextID += 2
	}); err != nil {
		return
	}
	buf, err := encodePacket(id, &v3.RpcPayload{Cancel: &v3.Cancel{RequestID: requestID}}, c.limits)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), CancelTimeout)
	defer cancel()
	_ = c.enqueue(ctx, buf)
}

func (c *Conn) closeReason() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrClosed
}

func (c *Conn) enqueue(ctx context.Context, buf []byte) error {
	select {
	case c.writeCh <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.closeReason()
	}
}

func encodePacket(id uint64, p *v3.RpcPayload, limits wire.Limits) ([]byte, error) {
	data, err := v3.EncodePayload(p)
	if err != nil {
		return nil, err
	}
	frame := &v3.WireFrame{Type: v3.FramePacket, Packet: &v3.Packet{
		ID:          id,
		Compression: v3.CompressionNone,
		Data:        data,
	}}
	raw, err := v3.EncodeFrame(frame)
	if err != nil {
		return nil, err
	}
	if len(raw) > int(limits.MaxFrameBytes) {
		return nil, &wire.FrameTooLargeError{Declared: uint32(len(raw)), Limit: limits.MaxFrameBytes}
	}
	return raw, nil
}

func (c *Conn) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case buf := <-c.writeCh:
			if nc, ok := c.transport.(net.Conn); ok {
				_ = nc.SetWriteDeadline(time.Now().Add(WriteTimeout))
			}
			if err := wire.WriteFrame(c.transport, buf, c.limits); err != nil {
				c.close(fmt.Errorf("write: %w", err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	for {
		if nc, ok := c.transport.(net.Conn); ok {
			_ = nc.SetReadDeadline(time.Now().Add(ReadIdleTimeout))
		}
		payload, err := wire.ReadFrame(c.transport, c.limits)
		if err != nil {
			c.close(fmt.Errorf("read: %w", err))
			return
		}
		frame, err := v3.DecodeFrame(payload)
		if err != nil {
			c.close(fmt.Errorf("%w: %v", errProtocol, err))
			return
		}
		switch frame.Type {
		case v3.FramePacket:
			if frame.Packet == nil {
				c.close(fmt.Errorf("%w: packet frame without body", errProtocol))
				return
			}
			if err := c.dispatchPacket(frame.Packet); err != nil {
				c.close(err)
				return
			}
		default:
			if frame.Known() {
				c.close(fmt.Errorf("%w: unexpected %d frame after handshake", errProtocol, frame.Type))
				return
			}
			// Unknown frame types from newer peers are skipped.
			c.log.Debug("skipping unknown frame type", "type", uint8(frame.Type))
		}
	}
}

func (c *Conn) dispatchPacket(pkt *v3.Packet) error {
	if pkt.Compression != v3.CompressionNone {
		return fmt.Errorf("%w: unsupported compression %d", errProtocol, pkt.Compression)
	}
	p, err := v3.DecodePayload(pkt.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", errProtocol, err)
	}
	switch {
	case p.Response != nil:
		_ = c.calls.with(func(s *callState) {
			if ch, ok := s.pending[pkt.ID]; ok {
				delete(s.pending, pkt.ID)
				ch <- p.Response
			}
		})
	case p.Request != nil:
		c.serveRequest(pkt.ID, p.Request)
	case p.Notification != nil:
		c.deliverNotification(p.Notification)
	case p.Cancel != nil:
		c.handlerMu.Lock()
		cancel := c.inflight[p.Cancel.RequestID]
		c.handlerMu.Unlock()
		if cancel != nil {
			cancel()
		}
	default:
		// A payload variant added after this build. Ignore it.
		c.log.Debug("skipping unknown payload variant", "packet_id", pkt.ID)
	}
	return nil
}

func (c *Conn) serveRequest(id uint64, req *v3.Request) {
	c.handlerMu.Lock()
	h := c.handler
	c.handlerMu.Unlock()
	if h == nil {
		c.respond(id, &v3.Response{Err: &v3.RpcError{
			Code:    v3.ErrCodeUnsupported,
			Message: "no request handler installed",
		}})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.handlerMu.Lock()
	c.inflight[id] = cancel
	c.handlerMu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			cancel()
			c.handlerMu.Lock()
			delete(c.inflight, id)
			c.handlerMu.Unlock()
		}()
		resp := h(ctx, req)
		if resp == nil {
			resp = &v3.Response{Err: &v3.RpcError{Code: v3.ErrCodeInternal, Message: "handler returned no response"}}
		}
		c.respond(id, resp)
	}()
}

func (c *Conn) respond(id uint64, resp *v3.Response) {
	buf, err := encodePacket(id, &v3.RpcPayload{Response: resp}, c.limits)
	if err != nil {
		c.log.Error("encoding response failed", "packet_id", id, "error", err)
		buf, err = encodePacket(id, &v3.RpcPayload{Response: &v3.Response{Err: &v3.RpcError{
			Code:    v3.ErrCodeTooLarge,
			Message: "response could not be encoded within frame limits",
		}}}, c.limits)
		if err != nil {
			return
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), WriteTimeout)
	defer cancel()
	_ = c.enqueue(ctx, buf)
}

func (c *Conn) deliverNotification(n *v3.Notification) {
	c.notifyMu.Lock()
	fn := c.notifyFn
	if fn == nil {
		if len(c.pendingNotifs) >= maxPendingNotifications {
			c.pendingNotifs = c.pendingNotifs[1:]
		}
		c.pendingNotifs = append(c.pendingNotifs, n)
		c.notifyMu.Unlock()
		return
	}
	c.notifyMu.Unlock()
	fn(n)
}
