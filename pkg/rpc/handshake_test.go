package rpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/protocol"
	"mercator-hq/saturn/pkg/protocol/legacy"
	v3 "mercator-hq/saturn/pkg/protocol/v3"
	"mercator-hq/saturn/pkg/wire"
)

func routerCfg(t *testing.T, token string) RouterHandshakeConfig {
	t.Helper()
	var nextID protocol.WorkerID
	return RouterHandshakeConfig{
		Limits:    wire.WithMaxFrameBytes(1 << 20),
		AuthToken: token,
		Revision: func(shard protocol.ShardID) (protocol.Revision, bool) {
			if shard > 4 {
				return 0, false
			}
			return protocol.Revision(10 + shard), true
		},
		AssignWorkerID: func() protocol.WorkerID {
			nextID++
			return nextID
		},
		Log: testLogger(t),
	}
}

func workerHello(shard protocol.ShardID, token string) *v3.WorkerHello {
	return &v3.WorkerHello{
		ShardID:           shard,
		AuthToken:         token,
		SupportedVersions: v3.DefaultSupportedVersions,
		Capabilities:      v3.DefaultCapabilities(1 << 20),
	}
}

func TestRouterHandshakeV3Accept(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	type result struct {
		res *RouterHandshakeResult
		err error
	}
	routerCh := make(chan result, 1)
	go func() {
		res, err := RouterHandshake(a, routerCfg(t, "tok"))
		routerCh <- result{res, err}
	}()

	conn, welcome, err := WorkerHandshake(b, workerHello(2, "tok"), wire.WithMaxFrameBytes(1<<20), testLogger(t))
	if err != nil {
		t.Fatalf("WorkerHandshake: %v", err)
	}
	defer conn.Close()

	r := <-routerCh
	if r.err != nil {
		t.Fatalf("RouterHandshake: %v", r.err)
	}
	defer r.res.Conn.Close()

	if r.res.ShardID != 2 || welcome.ShardID != 2 {
		t.Errorf("shard ids = (%d, %d), want 2", r.res.ShardID, welcome.ShardID)
	}
	if welcome.Revision != 12 {
		t.Errorf("revision = %d, want 12", welcome.Revision)
	}
	if welcome.ChosenVersion != v3.Current {
		t.Errorf("chosen version = %s", welcome.ChosenVersion)
	}
	if r.res.Legacy != nil || r.res.Conn == nil {
		t.Error("expected a multiplexed connection")
	}

	// The handshaken pair must carry traffic.
	r.res.Conn.SetRequestHandler(func(ctx context.Context, req *v3.Request) *v3.Response {
		return &v3.Response{Ack: &v3.AckResponse{}}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := conn.Call(ctx, &v3.Request{GetWorkerStats: &v3.GetWorkerStatsReq{}})
	if err != nil {
		t.Fatalf("Call after handshake: %v", err)
	}
	if resp.Ack == nil {
		t.Errorf("resp = %+v, want ack", resp)
	}
}

func TestRouterHandshakeRejections(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		hello    *v3.WorkerHello
		wantCode v3.RejectCode
		wantMsg  string
	}{
		{
			name:     "bad token",
			token:    "right",
			hello:    workerHello(0, "wrong"),
			wantCode: v3.RejectUnauthorized,
			wantMsg:  "authentication failed",
		},
		{
			name:     "missing token",
			token:    "right",
			hello:    workerHello(0, ""),
			wantCode: v3.RejectUnauthorized,
			wantMsg:  "authentication failed",
		},
		{
			name:  "no common version",
			token: "",
			hello: &v3.WorkerHello{
				ShardID:           0,
				SupportedVersions: v3.SupportedVersions{Min: v3.ProtocolVersion{Major: 9}, Max: v3.ProtocolVersion{Major: 9}},
				Capabilities:      v3.DefaultCapabilities(1 << 20),
			},
			wantCode: v3.RejectUnsupportedVersion,
			wantMsg:  "no common protocol version",
		},
		{
			name:     "unknown shard",
			token:    "",
			hello:    workerHello(99, ""),
			wantCode: v3.RejectShardUnknown,
			wantMsg:  "not in the workspace layout",
		},
		{
			name:  "zero capabilities",
			token: "",
			hello: &v3.WorkerHello{
				ShardID:           0,
				SupportedVersions: v3.DefaultSupportedVersions,
			},
			wantCode: v3.RejectInternal,
			wantMsg:  "capabilities",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := net.Pipe()
			t.Cleanup(func() { a.Close(); b.Close() })

			go func() {
				_, _ = RouterHandshake(a, routerCfg(t, tt.token))
			}()

			_, _, err := WorkerHandshake(b, tt.hello, wire.WithMaxFrameBytes(1<<20), testLogger(t))
			var rej *RejectedError
			if !errors.As(err, &rej) {
				t.Fatalf("err = %v, want *RejectedError", err)
			}
			if rej.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", rej.Code, tt.wantCode)
			}
			if !strings.Contains(rej.Message, tt.wantMsg) {
				t.Errorf("message = %q, want mention of %q", rej.Message, tt.wantMsg)
			}
		})
	}
}

func TestRouterHandshakeAdmissionBusy(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	cfg := routerCfg(t, "")
	cfg.Admission = func(shard protocol.ShardID) error {
		return errors.New("shard 1 already has a connected worker")
	}

	go func() { _, _ = RouterHandshake(a, cfg) }()

	_, _, err := WorkerHandshake(b, workerHello(1, ""), wire.WithMaxFrameBytes(1<<20), testLogger(t))
	var rej *RejectedError
	if !errors.As(err, &rej) || rej.Code != v3.RejectBusy {
		t.Fatalf("err = %v, want busy rejection", err)
	}
}

func TestRouterHandshakeLegacy(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	limits := wire.WithMaxFrameBytes(1 << 20)
	type result struct {
		res *RouterHandshakeResult
		err error
	}
	routerCh := make(chan result, 1)
	go func() {
		res, err := RouterHandshake(a, routerCfg(t, "tok"))
		routerCh <- result{res, err}
	}()

	// Simulate an old worker: raw version 2 hello, then read the reply.
	hello, err := legacy.Encode(&legacy.WorkerHello{
		ShardID: 1, AuthToken: "tok", HasAuthToken: true, HasCachedIndex: true,
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := wire.WriteFrame(b, hello, limits); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	reply, err := wire.ReadFrame(b, limits)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	msg, err := legacy.Decode(reply)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rh, ok := msg.(*legacy.RouterHello)
	if !ok {
		t.Fatalf("reply = %T, want *legacy.RouterHello", msg)
	}
	if rh.ProtocolVersion != legacy.Version || rh.ShardID != 1 || rh.Revision != 11 {
		t.Errorf("RouterHello = %+v", rh)
	}

	r := <-routerCh
	if r.err != nil {
		t.Fatalf("RouterHandshake: %v", r.err)
	}
	if r.res.Legacy == nil || r.res.Conn != nil {
		t.Error("expected a lockstep session")
	}
	if !r.res.HasCachedIndex {
		t.Error("cached index announcement lost")
	}
	r.res.Legacy.Close()
}

func TestRouterHandshakeLegacyBadToken(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	limits := wire.WithMaxFrameBytes(1 << 20)
	errCh := make(chan error, 1)
	go func() {
		_, err := RouterHandshake(a, routerCfg(t, "right"))
		errCh <- err
	}()

	hello, _ := legacy.Encode(&legacy.WorkerHello{ShardID: 1})
	if err := wire.WriteFrame(b, hello, limits); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	reply, err := wire.ReadFrame(b, limits)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	msg, err := legacy.Decode(reply)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if e, ok := msg.(*legacy.Error); !ok || !strings.Contains(e.Message, "authentication failed") {
		t.Errorf("reply = %#v, want authentication error", msg)
	}
	if err := <-errCh; !errors.Is(err, ErrRejected) {
		t.Errorf("router err = %v, want ErrRejected", err)
	}
}
