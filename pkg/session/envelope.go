package session

// Inbound and outbound message envelopes for the Twilio Media Streams
// wire protocol. One inbound media envelope carries 160 bytes of
// base64 mu-law; outbound envelopes are written one frame at a time by
// the pacer.

// Event names used on the stream.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventClear     = "clear"
)

// Envelope is one inbound message from the media stream.
type Envelope struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
	Stop      *StopPayload  `json:"stop,omitempty"`
}

// StartPayload accompanies the start event.
type StartPayload struct {
	StreamSid  string   `json:"streamSid"`
	AccountSid string   `json:"accountSid,omitempty"`
	CallSid    string   `json:"callSid,omitempty"`
	Tracks     []string `json:"tracks,omitempty"`
}

// MediaPayload carries one frame of base64-encoded mu-law audio.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// StopPayload accompanies the stop event.
type StopPayload struct {
	AccountSid string `json:"accountSid,omitempty"`
	CallSid    string `json:"callSid,omitempty"`
}

// OutboundMedia is one outbound audio frame.
type OutboundMedia struct {
	Event     string          `json:"event"`
	StreamSid string          `json:"streamSid"`
	Media     OutboundPayload `json:"media"`
}

// OutboundPayload wraps the base64 frame data.
type OutboundPayload struct {
	Payload string `json:"payload"`
}

// OutboundClear tells the provider to drop any buffered playback.
// Sent once when the far end barges in over our speech.
type OutboundClear struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}
