package stream

import (
	"encoding/json"
	"time"
)

// apiCallLogCap bounds the replay deque for the outbound-request log
// stream, a bounded deque of cap 100.
const apiCallLogCap = 100

// APICallEvent records one outbound upstream HTTP call for the
// /v1/stream/api_calls diagnostic feed.
type APICallEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Upstream   string    `json:"upstream"`
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// APICallLog wraps a Broadcaster pre-configured with the API-call replay
// cap and knows how to encode an APICallEvent into an SSE frame.
type APICallLog struct {
	*Broadcaster
}

// NewAPICallLog returns an APICallLog ready to receive Record calls.
func NewAPICallLog() *APICallLog {
	return &APICallLog{Broadcaster: NewBroadcaster(apiCallLogCap)}
}

// Record encodes e once as an SSE frame and publishes it to every
// subscriber (and into the replay buffer).
func (l *APICallLog) Record(e APICallEvent) error {
	frame, err := EncodeFrame(e)
	if err != nil {
		return err
	}
	l.Publish(frame)
	return nil
}

// EncodeFrame renders v as a single "data: <json>\n\n" SSE frame, encoded
// once per event to avoid N× serialization.
func EncodeFrame(v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return EncodeFrameRaw(body), nil
}

// EncodeFrameRaw wraps an already-marshaled JSON body as a single
// "data: <json>\n\n" SSE frame, for callers that keep the raw bytes
// around for reuse elsewhere (e.g. a plain-JSON HTTP handler).
func EncodeFrameRaw(body []byte) []byte {
	out := make([]byte, 0, len(body)+8)
	out = append(out, "data: "...)
	out = append(out, body...)
	out = append(out, '\n', '\n')
	return out
}
