package events

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestSignPayload(t *testing.T) {
	sig := SignPayload([]byte(`{"a":1}`), "secret")
	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig))
	}
	if !VerifySignature([]byte(`{"a":1}`), "secret", sig) {
		t.Error("expected signature to verify")
	}
	if VerifySignature([]byte(`{"a":2}`), "secret", sig) {
		t.Error("expected tampered payload to fail")
	}
}

func TestWebhookPublisher_Delivers(t *testing.T) {
	var gotBody, gotSig, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotType = r.Header.Get("X-Event-Type")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	pub, err := NewWebhookPublisher(srv.URL, "secret")
	if err != nil {
		t.Fatalf("NewWebhookPublisher: %v", err)
	}
	defer pub.Close()

	body := []byte(`{"event_type":"PATIENT_CREATED"}`)
	if err := pub.Publish(context.Background(), "patient", Message{ID: "e1", Type: "PATIENT_CREATED", Body: body}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if gotBody != string(body) {
		t.Errorf("expected body %s, got %s", body, gotBody)
	}
	if gotType != "PATIENT_CREATED" {
		t.Errorf("expected event type header, got %q", gotType)
	}
	if !strings.HasPrefix(gotSig, "sha256=") || !VerifySignature(body, "secret", strings.TrimPrefix(gotSig, "sha256=")) {
		t.Errorf("expected valid signature, got %q", gotSig)
	}
}

func TestWebhookPublisher_PostsOnce(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(code)
			}))
			defer srv.Close()

			pub, _ := NewWebhookPublisher(srv.URL, "")
			if err := pub.Publish(context.Background(), "patient", Message{ID: "e1"}); err == nil {
				t.Fatalf("expected error for %d response", code)
			}
			if got := atomic.LoadInt32(&calls); got != 1 {
				t.Errorf("expected a single attempt, got %d", got)
			}
		})
	}
}

func TestWebhookPublisher_ClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	pub, _ := NewWebhookPublisher(srv.URL, "", WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	if err := pub.Publish(context.Background(), "patient", Message{ID: "e1", Type: "PATIENT_CREATED"}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNewWebhookPublisher_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "ftp://x", "not a url", "/relative"} {
		if _, err := NewWebhookPublisher(u, ""); err == nil {
			t.Errorf("expected error for %q", u)
		}
	}
}
