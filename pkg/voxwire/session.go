// Package voxwire is the host-facing surface of the call-session client: one
// voice call at a time over a websocket, with a typed event registry and a
// guarded outbound audio path.
package voxwire

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxwire/voxwire/pkg/callstate"
	"github.com/voxwire/voxwire/pkg/dispatch"
	"github.com/voxwire/voxwire/pkg/envelope"
	"github.com/voxwire/voxwire/pkg/errorsx"
	"github.com/voxwire/voxwire/pkg/logging"
	"github.com/voxwire/voxwire/pkg/provision"
	"github.com/voxwire/voxwire/pkg/transport"
)

type sessionCreator interface {
	CreateSession(ctx context.Context, opts provision.Options) (provision.Created, error)
}

// Session manages exactly one call per instantiation at a time, reusable
// across consecutive calls. The socket handle and duration clock are owned
// by its transport and state machine; nothing outside touches them.
type Session struct {
	cfg     Config
	log     *slog.Logger
	bus     *dispatch.Bus
	machine *callstate.Machine
	tr      *transport.Transport
	creator sessionCreator

	mu      sync.Mutex
	callID  string
	loading atomic.Bool
}

func NewSession(cfg Config) *Session {
	base := slog.Default()
	bus := dispatch.NewBus(logging.NewComponentLogger(base, "dispatch"))
	machine := callstate.NewMachine()
	tr := transport.New(
		transport.Config{WSBaseURL: cfg.WSBaseURL, HandshakeTimeout: cfg.handshakeTimeout()},
		bus, machine,
		logging.NewComponentLogger(base, "transport"),
	)
	s := &Session{
		cfg:     cfg,
		log:     logging.NewComponentLogger(base, "session"),
		bus:     bus,
		machine: machine,
		tr:      tr,
		creator: provision.NewClient(
			provision.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.requestTimeout()},
			logging.NewComponentLogger(base, "provision"),
		),
	}
	machine.AddListener(func(ch callstate.StateChange) {
		s.log.Info("call_state_changed",
			"from", ch.From.String(),
			"to", ch.To.String(),
			"reason", ch.Reason,
		)
	})
	return s
}

// StartCall provisions a call identifier and opens its socket. A call in
// flight for this session makes StartCall a no-op until it resolves. Only
// create-session failures propagate to the caller; they also land the
// lifecycle state in error.
func (s *Session) StartCall(ctx context.Context, opts provision.Options) error {
	switch s.machine.State() {
	case callstate.StateConnecting, callstate.StateConnected:
		s.log.Debug("start_call_skipped", "state", s.machine.State().String())
		return nil
	}
	if !s.loading.CompareAndSwap(false, true) {
		s.log.Debug("start_call_skipped", "state", "provisioning")
		return nil
	}
	// Held through Open so no second StartCall can slip in between the
	// create-session response and the connecting transition.
	defer s.loading.Store(false)
	created, err := s.creator.CreateSession(ctx, opts)
	if err != nil {
		_ = s.machine.Transition(callstate.StateError, "session create failed")
		s.bus.Emit(dispatch.Event{Kind: dispatch.EventError, Err: err})
		return err
	}

	s.mu.Lock()
	s.callID = created.CallID
	s.mu.Unlock()
	return s.tr.Open(ctx, created.CallID)
}

// Hangup ends the live call and clears the call identifier, readying the
// session for a new StartCall. Safe to call in any state.
func (s *Session) Hangup() {
	s.tr.Terminate()
	s.mu.Lock()
	s.callID = ""
	s.mu.Unlock()
}

// Close disposes the session: synchronous teardown of socket, clock, and
// attempt guard before returning.
func (s *Session) Close() {
	s.Hangup()
}

// Pipe sends one chunk of outbound audio. It reports false, with no side
// effects beyond a diagnostic log, whenever the transport is absent or not
// open-ready, or when transmission fails. Dropped chunks are the caller's
// policy to resend.
func (s *Session) Pipe(data string) bool {
	if data == "" {
		return false
	}
	if !s.tr.IsReady() {
		return false
	}
	if err := s.tr.Send(envelope.NewAudioChunk(data, time.Now())); err != nil {
		s.log.Warn("pipe_send_failed",
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error(),
		)
		return false
	}
	return true
}

// On registers a callback for an event kind and returns its unsubscribe
// function, idempotent and safe after the session has ended.
func (s *Session) On(kind dispatch.Kind, handler dispatch.Handler) func() {
	return s.bus.On(kind, handler)
}

// State returns the current call lifecycle state.
func (s *Session) State() callstate.State {
	return s.machine.State()
}

// Duration returns whole elapsed call seconds; frozen once teardown begins.
func (s *Session) Duration() int64 {
	return s.machine.Duration()
}

// CallID returns the active call identifier, empty before assignment and
// after hangup.
func (s *Session) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// Loading reports whether a StartCall is mid-setup, from the create-session
// request until its socket open resolves.
func (s *Session) Loading() bool {
	return s.loading.Load()
}

// Drain implements runner.Drainer so a host process can hand the session to
// a lifecycle runner for shutdown.
func (s *Session) Drain() error {
	s.Close()
	return nil
}
