package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/wikiport/internal/converter"
)

func next(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypePageConverted, Data: map[string]string{"page": "HomePage"}})
	b.Publish(Event{Type: TypePageConverted, Data: map[string]string{"page": "Other"}})

	first := next(t, ch)
	if !strings.HasPrefix(first, "id: 1\nevent: page.converted\n") {
		t.Errorf("unexpected framing %q", first)
	}
	if !strings.Contains(first, `"page":"HomePage"`) {
		t.Errorf("missing data in %q", first)
	}
	if second := next(t, ch); !strings.HasPrefix(second, "id: 2\n") {
		t.Errorf("ids should increase: %q", second)
	}
}

func TestProgressHook(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	hook := b.ProgressHook()
	hook(converter.PageResult{RunID: "r1", Page: "A", Output: "A.md"})
	hook(converter.PageResult{RunID: "r1", Page: "B", Output: "B.md", Err: errors.New("boom")})
	hook(converter.PageResult{RunID: "r1", Page: "C", Output: "C.md", Skipped: true})
	b.PublishReport(&converter.Report{RunID: "r1", Total: 3, Converted: 1, Skipped: 1, Failed: 1})

	if msg := next(t, ch); !strings.Contains(msg, "event: page.converted") || !strings.Contains(msg, `"output":"A.md"`) {
		t.Errorf("converted event = %q", msg)
	}
	if msg := next(t, ch); !strings.Contains(msg, "event: page.failed") || !strings.Contains(msg, `"error":"boom"`) {
		t.Errorf("failed event = %q", msg)
	}
	if msg := next(t, ch); !strings.Contains(msg, "event: page.skipped") || !strings.Contains(msg, `"output":"C.md"`) {
		t.Errorf("skipped event = %q", msg)
	}
	if msg := next(t, ch); !strings.Contains(msg, "event: batch.completed") || !strings.Contains(msg, `"failed":1`) {
		t.Errorf("completed event = %q", msg)
	}
}

func TestPublishChange_IndexThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Only the first change may trigger index.updated.
	b.PublishChange("created", "a.md")
	b.PublishChange("updated", "b.md")
	b.PublishChange("renamed", "c.md")

	time.Sleep(50 * time.Millisecond)
	indexCount := 0
	pageCount := 0
	for _, msg := range drain(ch) {
		if strings.Contains(msg, TypeIndexUpdated) {
			indexCount++
		} else {
			pageCount++
		}
	}

	if pageCount != 2 {
		t.Errorf("page events = %d, want 2", pageCount)
	}
	if indexCount != 1 {
		t.Errorf("index events = %d, want 1 (throttled)", indexCount)
	}
}

func drain(ch chan []byte) []string {
	var msgs []string
	for {
		select {
		case msg := <-ch:
			msgs = append(msgs, string(msg))
		default:
			return msgs
		}
	}
}

func TestPublishChange_HeldDuringBatch(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishStarted("r1", "/wiki", "/vault")
	b.PublishChange("created", "A.md")
	b.PublishChange("updated", "B.md")
	b.PublishReport(&converter.Report{RunID: "r1", Total: 2, Converted: 2})

	if msg := next(t, ch); !strings.Contains(msg, "event: batch.started") {
		t.Fatalf("first event = %q", msg)
	}
	if msg := next(t, ch); !strings.Contains(msg, "event: batch.completed") {
		t.Fatalf("page changes should be held during the run, got %q", msg)
	}
	msg := next(t, ch)
	if !strings.Contains(msg, "event: index.updated") || !strings.Contains(msg, `"run_id":"r1"`) {
		t.Errorf("index event after run = %q", msg)
	}

	// The flush counts against the throttle window.
	b.PublishChange("deleted", "A.md")
	time.Sleep(50 * time.Millisecond)
	msgs := drain(ch)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "event: page.deleted") {
		t.Errorf("after run got %q, want one page.deleted", msgs)
	}
}

func TestBatchWithoutChangesSkipsIndexEvent(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishStarted("r2", "/wiki", "/vault")
	b.PublishReport(&converter.Report{RunID: "r2"})
	time.Sleep(50 * time.Millisecond)

	msgs := drain(ch)
	if len(msgs) != 2 {
		t.Fatalf("got %d events, want 2: %q", len(msgs), msgs)
	}
	for _, msg := range msgs {
		if strings.Contains(msg, TypeIndexUpdated) {
			t.Errorf("unexpected index event %q", msg)
		}
	}
}

func TestChangeType(t *testing.T) {
	cases := map[string]string{
		"created": TypePageCreated,
		"updated": TypePageUpdated,
		"deleted": TypePageDeleted,
		"renamed": "",
	}
	for kind, want := range cases {
		got, ok := changeType(kind)
		if got != want || ok != (want != "") {
			t.Errorf("changeType(%q) = %q, %v", kind, got, ok)
		}
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: TypeBatchCompleted, Data: map[string]int{"total": 3}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}
	if body := w.Body.String(); !strings.Contains(body, "event: batch.completed") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// One more than the client buffer must not block the loop.
	for i := 0; i < clientBuffer+6; i++ {
		b.Publish(Event{Type: "test", Data: map[string]int{"i": i}})
	}
	if b.ClientCount() != 1 {
		t.Error("broker loop should still answer")
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Safe no-ops after close.
	b.Publish(Event{Type: TypePageUpdated, Data: map[string]string{"path": "x.md"}})
	b.PublishChange("updated", "x.md")
	b.Close()
}
