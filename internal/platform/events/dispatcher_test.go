package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type recordingPublisher struct {
	mu      sync.Mutex
	msgs    []Message
	topics  []string
	err     error
	started chan struct{}
	release chan struct{}
	closed  bool
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, msg Message) error {
	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	p.topics = append(p.topics, topic)
	return p.err
}

func (p *recordingPublisher) Name() string { return "test" }

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.msgs...)
}

func newTestDispatcher(pub Publisher, cfg DispatcherConfig) (*Dispatcher, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewDispatcher(pub, cfg, zerolog.Nop(), reg), reg
}

func TestDispatcher_DeliversMessage(t *testing.T) {
	pub := &recordingPublisher{}
	d, _ := newTestDispatcher(pub, DispatcherConfig{Workers: 1, QueueSize: 4})

	msg := Message{ID: "evt-1", Type: "PATIENT_CREATED", Body: []byte(`{"id":"1"}`)}
	if !d.Dispatch(context.Background(), "patient", msg) {
		t.Fatal("expected message to be queued")
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	msgs := pub.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ID != "evt-1" {
		t.Errorf("expected evt-1, got %s", msgs[0].ID)
	}
	if pub.topics[0] != "patient" {
		t.Errorf("expected topic patient, got %s", pub.topics[0])
	}
	if !pub.closed {
		t.Error("expected publisher to be closed")
	}
	if got := testutil.ToFloat64(d.metrics.Published.WithLabelValues("test", "ok")); got != 1 {
		t.Errorf("expected 1 ok publish, got %v", got)
	}
}

func TestDispatcher_CancelledRequestStillPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	d, _ := newTestDispatcher(pub, DispatcherConfig{Workers: 1, QueueSize: 4})

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, "patient", Message{ID: "evt-1"})
	cancel()
	d.Close(context.Background())

	if len(pub.Messages()) != 1 {
		t.Fatal("expected message to be published after the request context was cancelled")
	}
}

func TestDispatcher_PublishErrorIsLoggedAndCounted(t *testing.T) {
	var buf bytes.Buffer
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	d := NewDispatcher(pub, DispatcherConfig{Workers: 1, QueueSize: 4}, zerolog.New(&buf), prometheus.NewRegistry())

	d.Dispatch(context.Background(), "patient", Message{ID: "evt-1"})
	d.Close(context.Background())

	if got := testutil.ToFloat64(d.metrics.Published.WithLabelValues("test", "error")); got != 1 {
		t.Errorf("expected 1 failed publish, got %v", got)
	}
	if !strings.Contains(buf.String(), "broker unavailable") {
		t.Errorf("expected publish error in log, got %s", buf.String())
	}
}

func TestDispatcher_QueueFullDrops(t *testing.T) {
	pub := &recordingPublisher{
		started: make(chan struct{}, 3),
		release: make(chan struct{}),
	}
	d, _ := newTestDispatcher(pub, DispatcherConfig{Workers: 1, QueueSize: 1})

	if !d.Dispatch(context.Background(), "patient", Message{ID: "evt-1"}) {
		t.Fatal("expected first message to be queued")
	}
	select {
	case <-pub.started:
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the first message")
	}

	if !d.Dispatch(context.Background(), "patient", Message{ID: "evt-2"}) {
		t.Fatal("expected second message to be queued")
	}
	if d.Dispatch(context.Background(), "patient", Message{ID: "evt-3"}) {
		t.Fatal("expected third message to be dropped")
	}
	if got := testutil.ToFloat64(d.metrics.Dropped); got != 1 {
		t.Errorf("expected 1 dropped, got %v", got)
	}

	close(pub.release)
	d.Close(context.Background())

	if len(pub.Messages()) != 2 {
		t.Errorf("expected 2 published messages, got %d", len(pub.Messages()))
	}
}

func TestDispatcher_DispatchAfterClose(t *testing.T) {
	pub := &recordingPublisher{}
	d, _ := newTestDispatcher(pub, DispatcherConfig{Workers: 1, QueueSize: 1})
	d.Close(context.Background())

	if d.Dispatch(context.Background(), "patient", Message{ID: "evt-1"}) {
		t.Fatal("expected dispatch after close to fail")
	}
	if err := d.Close(context.Background()); err != nil {
		t.Errorf("expected second Close to be a no-op, got %v", err)
	}
}

func TestDispatcher_CloseTimeout(t *testing.T) {
	pub := &recordingPublisher{release: make(chan struct{})}
	d, _ := newTestDispatcher(pub, DispatcherConfig{Workers: 1, QueueSize: 1})
	d.Dispatch(context.Background(), "patient", Message{ID: "evt-1"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	close(pub.release)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))

	err := p.Publish(context.Background(), "patient", Message{
		ID:   "evt-1",
		Type: "PATIENT_CREATED",
		Body: []byte(`{"patient":{"id":"abc"}}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"topic":"patient"`, `"event_id":"evt-1"`, `"body":{"patient":{"id":"abc"}}`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
	if p.Name() != "log" {
		t.Errorf("expected name log, got %s", p.Name())
	}
}
