package envelope

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/voxwire/voxwire/pkg/errorsx"
)

// Kind tags one JSON-framed unit on the wire.
type Kind string

const (
	KindAudio     Kind = "audio"
	KindAudioOut  Kind = "audio.out"
	KindCallEnded Kind = "call.ended"
	KindCancel    Kind = "cancel"
)

// Fixed outbound audio contract: base64 16-bit linear PCM, 8 kHz, mono.
const (
	AudioFormat     = "audio/l16"
	AudioSampleRate = 8000
	AudioChannels   = 1
)

// Inbound is one decoded message received from the socket. Data carries a
// base64 audio payload for audio events and is empty for control kinds.
type Inbound struct {
	Event string `json:"event"`
	Data  string `json:"data,omitempty"`
}

func (in Inbound) Kind() Kind { return Kind(in.Event) }

// DecodeInbound parses a raw wire message. A payload that is not valid JSON
// or lacks an event kind yields an envelope_decode error.
func DecodeInbound(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, errorsx.Wrap(err, errorsx.ReasonEnvelopeDecode)
	}
	if strings.TrimSpace(in.Event) == "" {
		return Inbound{}, errorsx.Wrap(errors.New("envelope missing event"), errorsx.ReasonEnvelopeDecode)
	}
	return in, nil
}

// Outbound is one unit sent on the wire. Constructed and transmitted
// atomically per send; never buffered or retried.
type Outbound struct {
	Event      string `json:"event"`
	Data       string `json:"data,omitempty"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Chunk      bool   `json:"chunk,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

// NewAudioChunk builds one outbound audio envelope around an opaque base64
// payload, stamped with the fixed format metadata and now in epoch millis.
func NewAudioChunk(data string, now time.Time) Outbound {
	return Outbound{
		Event:      string(KindAudio),
		Data:       data,
		Format:     AudioFormat,
		SampleRate: AudioSampleRate,
		Channels:   AudioChannels,
		Chunk:      true,
		Timestamp:  now.UnixMilli(),
	}
}

// NewHangup builds the terminal control envelope for caller-initiated hangup.
func NewHangup() Outbound {
	return Outbound{Event: string(KindCallEnded)}
}
