package envelope

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/voxwire/voxwire/pkg/errorsx"
)

func TestDecodeInbound(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"event":"audio.out","data":"QUJD"}`))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if in.Kind() != KindAudioOut {
		t.Fatalf("expected audio.out, got %s", in.Event)
	}
	if in.Data != "QUJD" {
		t.Fatalf("expected payload QUJD, got %q", in.Data)
	}
}

func TestDecodeInboundMalformed(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"event":`))
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonEnvelopeDecode) {
		t.Fatalf("expected envelope_decode reason, got %s", errorsx.Reason(err))
	}
}

func TestDecodeInboundMissingEvent(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"data":"QUJD"}`))
	if err == nil {
		t.Fatalf("expected decode error for missing event")
	}
	if !errorsx.HasReason(err, errorsx.ReasonEnvelopeDecode) {
		t.Fatalf("expected envelope_decode reason, got %s", errorsx.Reason(err))
	}
}

func TestNewAudioChunk(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	env := NewAudioChunk("base64chunk", now)
	if env.Event != "audio" || env.Data != "base64chunk" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Format != "audio/l16" || env.SampleRate != 8000 || env.Channels != 1 || !env.Chunk {
		t.Fatalf("unexpected audio metadata: %+v", env)
	}
	if env.Timestamp != 1700000000123 {
		t.Fatalf("expected epoch-ms timestamp, got %d", env.Timestamp)
	}
}

func TestNewHangupMarshalsMinimal(t *testing.T) {
	raw, err := json.Marshal(NewHangup())
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if string(raw) != `{"event":"call.ended"}` {
		t.Fatalf("expected minimal hangup envelope, got %s", raw)
	}
}
