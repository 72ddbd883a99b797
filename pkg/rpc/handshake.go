package rpc

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"mercator-hq/saturn/pkg/protocol"
	"mercator-hq/saturn/pkg/protocol/legacy"
	v3 "mercator-hq/saturn/pkg/protocol/v3"
	"mercator-hq/saturn/pkg/telemetry/logging"
	"mercator-hq/saturn/pkg/wire"
)

// HandshakeTimeout bounds the whole handshake exchange on either side.
const HandshakeTimeout = 5 * time.Second

// ErrRejected is wrapped by handshake failures that were explicitly
// refused by the peer rather than caused by transport problems.
var ErrRejected = errors.New("handshake rejected")

// RejectedError carries the peer's rejection.
type RejectedError struct {
	Code    v3.RejectCode
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("handshake rejected (%s): %s", e.Code, e.Message)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

// RouterHandshakeConfig parameterizes the router side of a handshake.
type RouterHandshakeConfig struct {
	Limits wire.Limits

	// AuthToken, when non-empty, must be matched exactly by the hello.
	AuthToken string

	// Authorize runs after the auth token check with the hello's shard id.
	// An error rejects the connection as unauthorized. Used for the
	// client certificate fingerprint allowlist, which is per shard.
	Authorize func(shard protocol.ShardID) error

	// Revision reports the current revision of a shard, or false for a
	// shard id outside the workspace layout.
	Revision func(shard protocol.ShardID) (protocol.Revision, bool)

	// Admission runs after the hello is validated and before the welcome
	// is sent. An error rejects the connection as busy. Used to reserve
	// the shard's worker slot atomically.
	Admission func(shard protocol.ShardID) error

	// AssignWorkerID mints the connection's worker id.
	AssignWorkerID func() protocol.WorkerID

	Log *logging.Logger
}

// RouterHandshakeResult is an accepted worker connection: either a
// multiplexed Conn (version 3) or a Lockstep session (version 2).
type RouterHandshakeResult struct {
	WorkerID protocol.WorkerID
	ShardID  protocol.ShardID
	Revision protocol.Revision

	// Conn is set for version 3 workers, Legacy for version 2. Exactly
	// one is non-nil.
	Conn   *Conn
	Legacy *Lockstep

	// CachedIndexInfo is the worker's announced cache, nil when absent.
	// Version 2 workers only announce presence, reported as a zero Info
	// with HasCachedIndex.
	HasCachedIndex  bool
	CachedIndexInfo *protocol.ShardIndexInfo
}

// RouterHandshake performs the router side of the handshake. The first
// frame's payload decides the protocol version: version 2 hellos start
// with their message tag, version 3 hellos are CBOR maps.
func RouterHandshake(transport io.ReadWriteCloser, cfg RouterHandshakeConfig) (*RouterHandshakeResult, error) {
	if nc, ok := transport.(net.Conn); ok {
		_ = nc.SetDeadline(time.Now().Add(HandshakeTimeout))
		defer nc.SetDeadline(time.Time{})
	}

	helloLimits := wire.Limits{MaxFrameBytes: MaxHelloBytes}
	payload, err := wire.ReadFrame(transport, helloLimits)
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty hello frame", errProtocol)
	}

	if payload[0]>>5 == 5 { // CBOR map: a version 3 hello
		return routerHandshakeV3(transport, cfg, payload)
	}
	return routerHandshakeLegacy(transport, cfg, payload)
}

func routerHandshakeV3(transport io.ReadWriteCloser, cfg RouterHandshakeConfig, payload []byte) (*RouterHandshakeResult, error) {
	frame, err := v3.DecodeFrame(payload)
	if err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}
	if frame.Type != v3.FrameHello || frame.Hello == nil {
		return nil, fmt.Errorf("%w: expected hello frame, got type %d", errProtocol, frame.Type)
	}
	hello := frame.Hello
	cfg.Log.Debug("received hello", "hello", hello.String())

	reject := func(code v3.RejectCode, msg string) (*RouterHandshakeResult, error) {
		_ = sendFrame(transport, &v3.WireFrame{Type: v3.FrameReject, Reject: &v3.RouterReject{
			Code: code, Message: msg,
		}}, cfg.Limits)
		return nil, &RejectedError{Code: code, Message: msg}
	}

	if hello.Capabilities.IsZero() {
		return reject(v3.RejectInternal, "hello carries no capabilities")
	}
	if !tokenMatches(cfg.AuthToken, hello.AuthToken) {
		return reject(v3.RejectUnauthorized, "authentication failed")
	}
	if cfg.Authorize != nil {
		if err := cfg.Authorize(hello.ShardID); err != nil {
			return reject(v3.RejectUnauthorized, err.Error())
		}
	}
	chosen, ok := v3.DefaultSupportedVersions.ChooseCommon(hello.SupportedVersions)
	if !ok {
		return reject(v3.RejectUnsupportedVersion, fmt.Sprintf(
			"no common protocol version (router supports %s..%s)",
			v3.DefaultSupportedVersions.Min, v3.DefaultSupportedVersions.Max))
	}
	revision, ok := cfg.Revision(hello.ShardID)
	if !ok {
		return reject(v3.RejectShardUnknown, fmt.Sprintf("shard %d is not in the workspace layout", hello.ShardID))
	}
	if cfg.Admission != nil {
		if err := cfg.Admission(hello.ShardID); err != nil {
			return reject(v3.RejectBusy, err.Error())
		}
	}

	caps := v3.Negotiate(v3.DefaultCapabilities(cfg.Limits.MaxFrameBytes), hello.Capabilities)
	workerID := cfg.AssignWorkerID()
	welcome := &v3.RouterWelcome{
		WorkerID:           workerID,
		ShardID:            hello.ShardID,
		Revision:           revision,
		ChosenVersion:      chosen,
		ChosenCapabilities: caps,
	}
	if err := sendFrame(transport, &v3.WireFrame{Type: v3.FrameWelcome, Welcome: welcome}, cfg.Limits); err != nil {
		return nil, fmt.Errorf("send welcome: %w", err)
	}

	connLimits := wire.WithMaxFrameBytes(caps.MaxFrameLen)
	return &RouterHandshakeResult{
		WorkerID:        workerID,
		ShardID:         hello.ShardID,
		Revision:        revision,
		Conn:            NewConn(transport, connLimits, cfg.Log.With("worker_id", workerID), RoleRouter),
		HasCachedIndex:  hello.CachedIndexInfo != nil,
		CachedIndexInfo: hello.CachedIndexInfo,
	}, nil
}

func routerHandshakeLegacy(transport io.ReadWriteCloser, cfg RouterHandshakeConfig, payload []byte) (*RouterHandshakeResult, error) {
	msg, err := legacy.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}
	hello, ok := msg.(*legacy.WorkerHello)
	if !ok {
		return nil, fmt.Errorf("%w: expected WorkerHello, got %T", errProtocol, msg)
	}
	cfg.Log.Debug("received legacy hello", "hello", hello.String())

	reject := func(reason string) (*RouterHandshakeResult, error) {
		if buf, encErr := legacy.Encode(&legacy.Error{Message: reason}); encErr == nil {
			_ = wire.WriteFrame(transport, buf, cfg.Limits)
		}
		return nil, &RejectedError{Code: v3.RejectUnauthorized, Message: reason}
	}

	token := ""
	if hello.HasAuthToken {
		token = hello.AuthToken
	}
	if !tokenMatches(cfg.AuthToken, token) {
		return reject("authentication failed")
	}
	if cfg.Authorize != nil {
		if err := cfg.Authorize(hello.ShardID); err != nil {
			return reject(err.Error())
		}
	}
	revision, ok := cfg.Revision(hello.ShardID)
	if !ok {
		return nil, fmt.Errorf("shard %d is not in the workspace layout", hello.ShardID)
	}
	if cfg.Admission != nil {
		if err := cfg.Admission(hello.ShardID); err != nil {
			if buf, encErr := legacy.Encode(&legacy.Error{Message: err.Error()}); encErr == nil {
				_ = wire.WriteFrame(transport, buf, cfg.Limits)
			}
			return nil, &RejectedError{Code: v3.RejectBusy, Message: err.Error()}
		}
	}

	workerID := cfg.AssignWorkerID()
	reply := &legacy.RouterHello{
		WorkerID:        workerID,
		ShardID:         hello.ShardID,
		Revision:        revision,
		ProtocolVersion: legacy.Version,
	}
	buf, err := legacy.Encode(reply)
	if err != nil {
		return nil, err
	}
	if err := wire.WriteFrame(transport, buf, cfg.Limits); err != nil {
		return nil, fmt.Errorf("send hello reply: %w", err)
	}

	return &RouterHandshakeResult{
		WorkerID:       workerID,
		ShardID:        hello.ShardID,
		Revision:       revision,
		Legacy:         NewLockstep(transport, cfg.Limits),
		HasCachedIndex: hello.HasCachedIndex,
	}, nil
}

func tokenMatches(want, got string) bool {
	if want == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func sendFrame(w io.Writer, f *v3.WireFrame, limits wire.Limits) error {
	buf, err := v3.EncodeFrame(f)
	if err != nil {
		return err
	}
	return wire.WriteFrame(w, buf, limits)
}

// WorkerHandshake performs the worker side of a version 3 handshake and
// returns the live connection with the router's welcome.
func WorkerHandshake(transport io.ReadWriteCloser, hello *v3.WorkerHello, limits wire.Limits, log *logging.Logger) (*Conn, *v3.RouterWelcome, error) {
	if nc, ok := transport.(net.Conn); ok {
		_ = nc.SetDeadline(time.Now().Add(HandshakeTimeout))
		defer nc.SetDeadline(time.Time{})
	}

	if err := sendFrame(transport, &v3.WireFrame{Type: v3.FrameHello, Hello: hello}, limits); err != nil {
		return nil, nil, fmt.Errorf("send hello: %w", err)
	}

	helloLimits := wire.Limits{MaxFrameBytes: MaxHelloBytes}
	payload, err := wire.ReadFrame(transport, helloLimits)
	if err != nil {
		return nil, nil, fmt.Errorf("read welcome: %w", err)
	}
	frame, err := v3.DecodeFrame(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("decode welcome: %w", err)
	}
	switch frame.Type {
	case v3.FrameWelcome:
		if frame.Welcome == nil {
			return nil, nil, fmt.Errorf("%w: welcome frame without body", errProtocol)
		}
	case v3.FrameReject:
		if frame.Reject == nil {
			return nil, nil, fmt.Errorf("%w: reject frame without body", errProtocol)
		}
		return nil, nil, &RejectedError{Code: frame.Reject.Code, Message: frame.Reject.Message}
	default:
		return nil, nil, fmt.Errorf("%w: expected welcome, got frame type %d", errProtocol, frame.Type)
	}
	welcome := frame.Welcome
	if welcome.ShardID != hello.ShardID {
		return nil, nil, fmt.Errorf("%w: welcome for shard %d, expected %d", errProtocol, welcome.ShardID, hello.ShardID)
	}

	connLimits := wire.WithMaxFrameBytes(welcome.ChosenCapabilities.MaxFrameLen)
	return NewConn(transport, connLimits, log.With("worker_id", welcome.WorkerID), RoleWorker), welcome, nil
}
