// Package transport owns the single live socket of a call session: connect,
// JSON envelope framing, inbound routing, and deterministic teardown.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/voxwire/voxwire/pkg/callstate"
	"github.com/voxwire/voxwire/pkg/dispatch"
	"github.com/voxwire/voxwire/pkg/envelope"
	"github.com/voxwire/voxwire/pkg/errorsx"
)

type Config struct {
	WSBaseURL        string `mapstructure:"ws_base_url"`
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	return c
}

type dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Transport holds at most one live socket. A new connection attempt is
// refused while a prior attempt is in flight or already open for the same
// call identifier; a different identifier supersedes the prior socket.
type Transport struct {
	cfg     Config
	bus     *dispatch.Bus
	machine *callstate.Machine
	log     *slog.Logger
	dial    dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	callID  string
	attempt string // call id of an in-flight Open, cleared only by its owner

	writeMu sync.Mutex
}

func New(cfg Config, bus *dispatch.Bus, machine *callstate.Machine, log *slog.Logger) *Transport {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Transport{
		cfg:     cfg,
		bus:     bus,
		machine: machine,
		log:     log,
		dial: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// StreamURL derives the socket URL for a call identifier.
func (t *Transport) StreamURL(callID string) string {
	return strings.TrimRight(t.cfg.WSBaseURL, "/") + "/stream/" + callID
}

// CallID returns the identifier of the live socket, empty when closed.
func (t *Transport) CallID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.callID
}

// IsReady reports whether the socket is open for sending.
func (t *Transport) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Open connects to the stream endpoint for callID. A duplicate attempt for
// the live identifier is a no-op; an open socket for a different identifier
// is torn down first. On success the state machine moves to connected, the
// duration clock starts, and the read loop takes over inbound traffic.
func (t *Transport) Open(ctx context.Context, callID string) error {
	if strings.TrimSpace(callID) == "" {
		return errorsx.Wrap(errors.New("call id required"), errorsx.ReasonTransportDial)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()
	if t.attempt != "" {
		t.mu.Unlock()
		t.log.Debug("transport_open_skipped", "reason", "attempt_in_flight", "call_id", callID)
		return nil
	}
	if t.conn != nil && t.callID == callID {
		t.mu.Unlock()
		t.log.Debug("transport_open_skipped", "reason", "already_open", "call_id", callID)
		return nil
	}
	prior := t.conn
	priorID := t.callID
	t.attempt = callID
	t.mu.Unlock()

	if prior != nil {
		t.log.Info("transport_superseded", "old_call_id", priorID, "call_id", callID)
		t.finish(prior, "superseded")
	}

	traceID := uuid.NewString()
	streamURL := t.StreamURL(callID)
	if err := t.machine.Transition(callstate.StateConnecting, "dialing "+streamURL); err != nil {
		t.log.Debug("transport_state_skew", "error", err.Error())
	}
	t.log.Info("transport_dialing", "call_id", callID, "trace_id", traceID, "url", streamURL)

	conn, resp, err := t.dial.DialContext(ctx, streamURL, nil)
	if err != nil {
		t.mu.Lock()
		if t.attempt == callID {
			t.attempt = ""
		}
		t.mu.Unlock()
		if resp != nil {
			t.log.Error("transport_dial_failed", "call_id", callID, "trace_id", traceID, "status", resp.StatusCode, "error", err.Error())
		} else {
			t.log.Error("transport_dial_failed", "call_id", callID, "trace_id", traceID, "error", err.Error())
		}
		err = errorsx.Wrap(err, errorsx.ReasonTransportDial)
		_ = t.machine.Transition(callstate.StateError, "dial failed")
		t.bus.Emit(dispatch.Event{Kind: dispatch.EventError, Err: err})
		return err
	}

	t.mu.Lock()
	if t.attempt != callID || t.conn != nil {
		// The attempt was withdrawn while the dial ran; a socket installed
		// here would orphan whichever one the transport already tracks.
		t.mu.Unlock()
		_ = conn.Close()
		t.log.Warn("transport_open_lost_race", "call_id", callID)
		return nil
	}
	t.conn = conn
	t.callID = callID
	t.attempt = ""
	t.mu.Unlock()

	_ = t.machine.Transition(callstate.StateConnected, "socket open")
	t.machine.StartClock(time.Now())
	t.bus.Emit(dispatch.Event{Kind: dispatch.EventCallStarted})
	t.log.Info("transport_connected", "call_id", callID, "trace_id", traceID)

	go t.readLoop(conn, callID, traceID)
	return nil
}

// Send transmits one envelope on the live socket. It never panics: an
// absent socket reports transport_closed and a write failure transport_send.
func (t *Transport) Send(env envelope.Outbound) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errorsx.Wrap(errorsx.ErrNotConnected, errorsx.ReasonTransportClosed)
	}
	if err := t.writeJSON(conn, env); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	return nil
}

// Terminate hangs up a live call: best-effort terminal control envelope,
// then close and the same teardown path as a remote close. No-op when the
// socket is already gone.
func (t *Transport) Terminate() {
	t.mu.Lock()
	conn := t.conn
	callID := t.callID
	t.mu.Unlock()
	if conn == nil {
		return
	}
	if err := t.writeJSON(conn, envelope.NewHangup()); err != nil {
		t.log.Warn("transport_hangup_send_failed", "call_id", callID, "error", err.Error())
	}
	t.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	t.finish(conn, "local hangup")
}

func (t *Transport) writeJSON(conn *websocket.Conn, env envelope.Outbound) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteJSON(env)
}

func (t *Transport) readLoop(conn *websocket.Conn, callID, traceID string) {
	log := t.log.With("call_id", callID, "trace_id", traceID)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if t.isCurrent(conn) && !isExpectedClose(err) {
				log.Error("transport_socket_error", "error", err.Error())
				werr := errorsx.Wrap(err, errorsx.ReasonTransportSocket)
				_ = t.machine.Transition(callstate.StateError, "socket error")
				t.bus.Emit(dispatch.Event{Kind: dispatch.EventError, Err: werr})
			}
			break
		}
		t.handleMessage(conn, raw, log)
	}
	t.finish(conn, "socket closed")
}

func (t *Transport) handleMessage(conn *websocket.Conn, raw []byte, log *slog.Logger) {
	in, err := envelope.DecodeInbound(raw)
	if err != nil {
		log.Error("envelope_decode_failed", "error", err.Error())
		_ = t.machine.Transition(callstate.StateError, "envelope decode failed")
		t.bus.Emit(dispatch.Event{Kind: dispatch.EventError, Err: err})
		return
	}
	switch in.Kind() {
	case envelope.KindAudioOut:
		if in.Data == "" {
			log.Warn("audio_payload_missing")
			return
		}
		t.bus.Emit(dispatch.Event{Kind: dispatch.EventAudioOut, Data: in.Data})
	case envelope.KindCallEnded:
		log.Info("remote_hangup")
		t.finish(conn, "remote hangup")
	case envelope.KindCancel:
		t.bus.Emit(dispatch.Event{Kind: dispatch.EventAudioCancelled})
	default:
		log.Warn("unknown_event_ignored", "event", in.Event)
	}
}

// finish is the single teardown path for every way a socket dies: remote
// close, local hangup, error-triggered close, or supersession. It stops the
// duration clock, clears the socket reference, lands the state machine in
// ended, and notifies call.ended subscribers. Keyed on the conn identity so
// a second arrival for the same socket is a no-op. It never touches the
// attempt token: that belongs to a running Open, which may be the caller.
func (t *Transport) finish(conn *websocket.Conn, reason string) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	callID := t.callID
	t.conn = nil
	t.callID = ""
	t.mu.Unlock()

	_ = conn.Close()
	t.machine.StopClock()
	if err := t.machine.Transition(callstate.StateEnded, reason); err != nil {
		t.log.Debug("transport_state_skew", "error", err.Error())
	}
	t.bus.Emit(dispatch.Event{Kind: dispatch.EventCallEnded})
	t.log.Info("transport_closed", "call_id", callID, "reason", reason)
}

func (t *Transport) isCurrent(conn *websocket.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn == conn
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
