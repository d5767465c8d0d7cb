package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestServeSSEWritesReplayThenSnapshotThenLive(t *testing.T) {
	b := NewBroadcaster(5)
	b.Publish([]byte("data: replayed\n\n"))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		ServeSSE(rec, req, b, func() []byte { return []byte("data: snapshot\n\n") })
		close(done)
	}()

	// Give ServeSSE time to write the replay and snapshot before publishing
	// a live frame and then disconnecting.
	time.Sleep(50 * time.Millisecond)
	b.Publish([]byte("data: live\n\n"))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeSSE did not return after context cancellation")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "data: replayed\n\n") {
		t.Fatalf("expected replay frame in body, got: %q", body)
	}
	if !strings.Contains(body, "data: snapshot\n\n") {
		t.Fatalf("expected snapshot frame in body, got: %q", body)
	}
	if !strings.Contains(body, "data: live\n\n") {
		t.Fatalf("expected live frame in body, got: %q", body)
	}
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type: %q", rec.Header().Get("Content-Type"))
	}
}
