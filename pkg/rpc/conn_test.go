package rpc

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/protocol"
	v3 "mercator-hq/saturn/pkg/protocol/v3"
	"mercator-hq/saturn/pkg/telemetry/logging"
	"mercator-hq/saturn/pkg/wire"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(logging.Config{Level: "error", Format: "text", Writer: io.Discard})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	return log
}

func connPair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	limits := wire.WithMaxFrameBytes(1 << 20)
	log := testLogger(t)
	router := NewConn(a, limits, log, RoleRouter)
	worker := NewConn(b, limits, log, RoleWorker)
	t.Cleanup(func() {
		router.Close()
		worker.Close()
	})
	return router, worker
}

func TestCallResponse(t *testing.T) {
	router, worker := connPair(t)

	worker.SetRequestHandler(func(ctx context.Context, req *v3.Request) *v3.Response {
		if req.SearchSymbols == nil {
			t.Errorf("unexpected request: %+v", req)
			return &v3.Response{Err: &v3.RpcError{Code: v3.ErrCodeUnsupported}}
		}
		return &v3.Response{SearchResults: &v3.SearchResultsResponse{
			Symbols: []protocol.Symbol{{Name: req.SearchSymbols.Query, Path: "a/X.java"}},
		}}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := router.Call(ctx, &v3.Request{SearchSymbols: &v3.SearchSymbolsRequest{Query: "X", Limit: 10}})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.SearchResults == nil || len(resp.SearchResults.Symbols) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if got := resp.SearchResults.Symbols[0].Name; got != "X" {
		t.Errorf("symbol name = %q, want %q", got, "X")
	}
}

func TestConcurrentCallsOutOfOrder(t *testing.T) {
	router, worker := connPair(t)

	// Delay the first request so its response arrives after the second's.
	var mu sync.Mutex
	seen := 0
	worker.SetRequestHandler(func(ctx context.Context, req *v3.Request) *v3.Response {
		mu.Lock()
		seen++
		first := seen == 1
		mu.Unlock()
		if first {
			time.Sleep(50 * time.Millisecond)
		}
		return &v3.Response{SearchResults: &v3.SearchResultsResponse{
			Symbols: []protocol.Symbol{{Name: req.SearchSymbols.Query}},
		}}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, q := range []string{"first", "second"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := router.Call(ctx, &v3.Request{SearchSymbols: &v3.SearchSymbolsRequest{Query: q}})
			if err != nil {
				t.Errorf("Call(%s): %v", q, err)
				return
			}
			results[i] = resp.SearchResults.Symbols[0].Name
		}()
	}
	wg.Wait()

	if results[0] != "first" || results[1] != "second" {
		t.Errorf("responses matched to wrong calls: %v", results)
	}
}

func TestCallContextCancel(t *testing.T) {
	router, worker := connPair(t)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	worker.SetRequestHandler(func(ctx context.Context, req *v3.Request) *v3.Response {
		close(started)
		select {
		case <-ctx.Done():
			close(cancelled)
		case <-time.After(5 * time.Second):
		}
		return &v3.Response{Ack: &v3.AckResponse{}}
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := router.Call(ctx, &v3.Request{GetWorkerStats: &v3.GetWorkerStatsReq{}})
		errCh <- err
	}()

	<-started
	cancel()

	if err := <-errCh; err != context.Canceled {
		t.Errorf("Call err = %v, want context.Canceled", err)
	}
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Error("peer handler never observed the cancellation")
	}
}

func TestCallFailsWhenPeerCloses(t *testing.T) {
	router, worker := connPair(t)

	worker.SetRequestHandler(func(ctx context.Context, req *v3.Request) *v3.Response {
		go worker.Close()
		<-ctx.Done()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := router.Call(ctx, &v3.Request{GetWorkerStats: &v3.GetWorkerStatsReq{}}); err == nil {
		t.Error("Call succeeded against a closed peer")
	}

	select {
	case <-router.Done():
	case <-time.After(2 * time.Second):
		t.Error("router conn never observed peer close")
	}
}

func TestNotificationBeforeHandlerBuffered(t *testing.T) {
	router, worker := connPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info := protocol.ShardIndexInfo{ShardID: 1, Revision: 3, IndexGeneration: 1, SymbolCount: 5}
	if err := worker.Notify(ctx, &v3.Notification{CachedIndex: &v3.CachedIndexNotification{Info: info}}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	// Give the notification time to land in the buffer.
	time.Sleep(100 * time.Millisecond)

	got := make(chan protocol.ShardIndexInfo, 1)
	router.SetNotificationHandler(func(n *v3.Notification) {
		if n.CachedIndex != nil {
			got <- n.CachedIndex.Info
		}
	})

	select {
	case g := <-got:
		if g != info {
			t.Errorf("notification info = %+v, want %+v", g, info)
		}
	case <-time.After(2 * time.Second):
		t.Error("buffered notification never delivered")
	}
}

func TestRequestWithoutHandlerAnsweredUnsupported(t *testing.T) {
	router, _ := connPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := router.Call(ctx, &v3.Request{GetWorkerStats: &v3.GetWorkerStatsReq{}})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Err == nil || resp.Err.Code != v3.ErrCodeUnsupported {
		t.Errorf("resp = %+v, want unsupported error", resp)
	}
}

func TestRequestIDParity(t *testing.T) {
	if got := RoleRouter.firstRequestID(); got != 2 {
		t.Errorf("router first id = %d, want 2", got)
	}
	if got := RoleWorker.firstRequestID(); got != 1 {
		t.Errorf("worker first id = %d, want 1", got)
	}
}
