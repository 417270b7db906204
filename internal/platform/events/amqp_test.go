package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// pendingConfirm resolves when the test sends the broker's answer.
type pendingConfirm struct {
	ack chan bool
}

func (c *pendingConfirm) WaitContext(ctx context.Context) (bool, error) {
	select {
	case ack := <-c.ack:
		return ack, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type fakeAMQPChannel struct {
	mu        sync.Mutex
	declared  []string
	published []amqp.Publishing
	confirms  []*pendingConfirm
	closed    bool
}

func (f *fakeAMQPChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeAMQPChannel) publish(_ context.Context, _ string, msg amqp.Publishing) (confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &pendingConfirm{ack: make(chan bool, 1)}
	f.published = append(f.published, msg)
	f.confirms = append(f.confirms, c)
	return c, nil
}

func (f *fakeAMQPChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeAMQPChannel) confirm(i int, ack bool) {
	f.mu.Lock()
	c := f.confirms[i]
	f.mu.Unlock()
	c.ack <- ack
}

func TestAMQPPublisher_LateConfirmDoesNotLeakIntoNextPublish(t *testing.T) {
	ch := &fakeAMQPChannel{}
	pub := newAMQPPublisher(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pub.Publish(ctx, "patient", Message{ID: "a"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error for unconfirmed message, got %v", err)
	}

	// The broker acks the first message only after its caller gave up.
	ch.confirm(0, true)

	done := make(chan error, 1)
	go func() { done <- pub.Publish(context.Background(), "patient", Message{ID: "b"}) }()
	waitForPublished(t, ch, 2)
	ch.confirm(1, false)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected the second message's nack to be reported, got nil")
		}
	case <-time.After(time.Second):
		t.Fatal("publish did not return")
	}
}

func TestAMQPPublisher_AckedPublish(t *testing.T) {
	ch := &fakeAMQPChannel{}
	pub := newAMQPPublisher(ch)

	done := make(chan error, 1)
	go func() {
		done <- pub.Publish(context.Background(), "patient", Message{
			ID:   "e1",
			Type: "PATIENT_CREATED",
			Key:  "p1",
			Body: []byte(`{}`),
		})
	}()
	waitForPublished(t, ch, 1)
	ch.confirm(0, true)

	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.declared) != 1 || ch.declared[0] != "patient" {
		t.Errorf("expected queue patient declared once, got %v", ch.declared)
	}
	msg := ch.published[0]
	if msg.MessageId != "e1" || msg.Type != "PATIENT_CREATED" {
		t.Errorf("unexpected publishing %+v", msg)
	}
	if msg.DeliveryMode != amqp.Persistent {
		t.Errorf("expected persistent delivery, got %d", msg.DeliveryMode)
	}
	if msg.Headers["key"] != "p1" {
		t.Errorf("expected key header p1, got %v", msg.Headers["key"])
	}
}

func waitForPublished(t *testing.T, ch *fakeAMQPChannel, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ch.mu.Lock()
		got := len(ch.published)
		ch.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d published messages", n)
}
