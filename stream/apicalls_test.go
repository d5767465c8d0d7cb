package stream

import (
	"strings"
	"testing"
	"time"
)

func TestAPICallLogRecordPublishesEncodedFrame(t *testing.T) {
	log := NewAPICallLog()
	id, ch, _ := log.Subscribe()
	defer log.Unsubscribe(id)

	err := log.Record(APICallEvent{
		Timestamp:  time.Now().UTC(),
		Upstream:   "transloc",
		URL:        "https://example.invalid/routes",
		StatusCode: 200,
		DurationMs: 42,
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	select {
	case frame := <-ch:
		s := string(frame)
		if !strings.HasPrefix(s, "data: ") || !strings.HasSuffix(s, "\n\n") {
			t.Fatalf("expected a well-formed SSE frame, got: %q", s)
		}
		if !strings.Contains(s, `"upstream":"transloc"`) || !strings.Contains(s, `"status_code":200`) {
			t.Fatalf("unexpected frame body: %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for recorded frame")
	}
}

func TestEncodeFrameRawMatchesEncodeFrame(t *testing.T) {
	v := map[string]int{"a": 1}
	viaMarshal, err := EncodeFrame(v)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	raw := []byte(`{"a":1}`)
	viaRaw := EncodeFrameRaw(raw)

	if string(viaMarshal) != string(viaRaw) {
		t.Fatalf("expected EncodeFrame and EncodeFrameRaw to agree, got %q vs %q", viaMarshal, viaRaw)
	}
}
