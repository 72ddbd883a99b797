package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"mercator-hq/saturn/pkg/protocol"
	"mercator-hq/saturn/pkg/telemetry/logging"
)

const (
	// AuthTokenEnvVar carries the worker's auth token. The token must
	// never appear in argv.
	AuthTokenEnvVar = "SATURN_WORKER_AUTH_TOKEN"

	// ShutdownGracePeriod is how long a stopping worker gets between the
	// termination signal and a hard kill.
	ShutdownGracePeriod = 2 * time.Second

	// StopWaitTimeout bounds how long Stop waits for the run loop to
	// finish in total.
	StopWaitTimeout = 20 * time.Second

	// outputTailBytes is how much trailing stdout/stderr is retained for
	// crash reports.
	outputTailBytes = 4096
)

// State is the supervisor lifecycle state, exposed for stats and tests.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateCrashed
	StateBackoff
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCrashed:
		return "crashed"
	case StateBackoff:
		return "backoff"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ProcessSpec describes how to launch one shard's worker process.
type ProcessSpec struct {
	// Binary is the worker executable path.
	Binary string

	// ConnectAddr is the router address handed to the worker.
	ConnectAddr string

	ShardID  protocol.ShardID
	CacheDir string

	// MaxRPCBytes is forwarded as the worker's frame limit. Zero means
	// the worker default.
	MaxRPCBytes uint32

	// AuthToken is injected through AuthTokenEnvVar.
	AuthToken string

	// AllowInsecure forwards the plaintext escape hatch.
	AllowInsecure bool

	ExtraArgs []string
}

func (p ProcessSpec) command() *exec.Cmd {
	args := []string{
		"--connect", p.ConnectAddr,
		"--shard-id", strconv.FormatUint(uint64(p.ShardID), 10),
	}
	if p.CacheDir != "" {
		args = append(args, "--cache-dir", p.CacheDir)
	}
	if p.MaxRPCBytes > 0 {
		args = append(args, "--max-rpc-bytes", strconv.FormatUint(uint64(p.MaxRPCBytes), 10))
	}
	if p.AllowInsecure {
		args = append(args, "--allow-insecure")
	}
	args = append(args, p.ExtraArgs...)

	cmd := exec.Command(p.Binary, args...)
	cmd.Env = os.Environ()
	if p.AuthToken != "" {
		cmd.Env = append(cmd.Env, AuthTokenEnvVar+"="+p.AuthToken)
	}
	return cmd
}

// Supervisor runs and restarts one shard's worker process.
type Supervisor struct {
	spec    ProcessSpec
	log     *logging.Logger
	journal *Journal
	backoff *RestartBackoff

	mu    sync.Mutex
	state State

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	// restarted is signalled (best effort) after every respawn, mostly
	// for tests and metrics hooks.
	onRestart func(protocol.ShardID)
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithJournal records lifecycle transitions to j.
func WithJournal(j *Journal) Option {
	return func(s *Supervisor) { s.journal = j }
}

// WithRestartHook calls fn after each crash-triggered respawn attempt.
func WithRestartHook(fn func(protocol.ShardID)) Option {
	return func(s *Supervisor) { s.onRestart = fn }
}

// New creates a supervisor for one shard. Call Start to begin.
func New(spec ProcessSpec, log *logging.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		spec:    spec,
		log:     log.With("shard_id", spec.ShardID),
		backoff: NewRestartBackoff(),
		state:   StateStarting,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the supervision loop.
func (s *Supervisor) Start() {
	go s.run()
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Stop requests a graceful shutdown, bypassing any restart backoff, and
// waits for the loop to finish or ctx to expire.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(StopWaitTimeout):
		return fmt.Errorf("worker for shard %d did not stop within %v", s.spec.ShardID, StopWaitTimeout)
	}
}

func (s *Supervisor) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			s.setState(StateStopped)
			return
		default:
		}

		sessionID := NewSessionID()
		s.setState(StateStarting)

		cmd := s.spec.command()
		tail := newTailBuffer(outputTailBytes)
		cmd.Stdout = tail
		cmd.Stderr = tail

		started := time.Now()
		if err := cmd.Start(); err != nil {
			s.log.Error("worker spawn failed", "error", err)
			s.journal.Record(s.spec.ShardID, sessionID, EventSpawnFail, err.Error())
			if !s.sleepBackoff(sessionID) {
				return
			}
			continue
		}
		s.log.Info("worker spawned", "pid", cmd.Process.Pid, "session_id", sessionID)
		s.journal.Record(s.spec.ShardID, sessionID, EventSpawned, fmt.Sprintf("pid=%d", cmd.Process.Pid))
		s.setState(StateRunning)
		s.journal.Record(s.spec.ShardID, sessionID, EventRunning, "")

		waitCh := make(chan error, 1)
		go func() { waitCh <- cmd.Wait() }()

		select {
		case err := <-waitCh:
			lasted := time.Since(started)
			s.backoff.ObserveSession(lasted)
			s.setState(StateCrashed)
			detail := fmt.Sprintf("after=%v err=%v output=%q", lasted.Round(time.Millisecond), err, tail.String())
			s.log.Warn("worker exited", "session_id", sessionID, "after", lasted, "error", err, "output_tail", tail.String())
			s.journal.Record(s.spec.ShardID, sessionID, EventCrashed, detail)
			if s.onRestart != nil {
				s.onRestart(s.spec.ShardID)
			}
			if !s.sleepBackoff(sessionID) {
				return
			}
		case <-s.stop:
			s.setState(StateShuttingDown)
			s.terminate(cmd, waitCh)
			s.setState(StateStopped)
			s.journal.Record(s.spec.ShardID, sessionID, EventStopped, "")
			return
		}
	}
}

// sleepBackoff waits out the next restart delay. Returns false when a
// stop request ended the wait.
func (s *Supervisor) sleepBackoff(sessionID string) bool {
	delay := Jitter(s.backoff.Next())
	s.setState(StateBackoff)
	s.journal.Record(s.spec.ShardID, sessionID, EventBackoff, delay.String())
	select {
	case <-time.After(delay):
		return true
	case <-s.stop:
		s.setState(StateStopped)
		return false
	}
}

func (s *Supervisor) terminate(cmd *exec.Cmd, waitCh chan error) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}
	select {
	case <-waitCh:
		return
	case <-time.After(ShutdownGracePeriod):
		_ = cmd.Process.Kill()
	}
	<-waitCh
}

// tailBuffer retains the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
