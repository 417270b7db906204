package billing

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeBilling struct {
	mu           sync.Mutex
	calls        []*AccountRequest
	contentTypes []string
	resp         *AccountResponse
	err          error
	delay        time.Duration
}

func (f *fakeBilling) CreateBillingAccount(ctx context.Context, req *AccountRequest) (*AccountResponse, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.contentTypes = append(f.contentTypes, md.Get("content-type")...)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeBilling) Calls() []*AccountRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*AccountRequest(nil), f.calls...)
}

func newTestClient(t *testing.T, srv Server, timeout time.Duration) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	s := NewGRPCServer(srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	client, err := NewClient(
		ClientConfig{Addr: "passthrough:///bufnet", Timeout: timeout},
		zerolog.Nop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClient_CreateBillingAccount(t *testing.T) {
	fake := &fakeBilling{resp: &AccountResponse{AccountID: "acct-1", Status: StatusActive}}
	client := newTestClient(t, fake, time.Second)

	resp, err := client.CreateBillingAccount(context.Background(), "patient-1", "John Doe", "john@email.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AccountID != "acct-1" {
		t.Errorf("expected acct-1, got %s", resp.AccountID)
	}
	if resp.Status != StatusActive {
		t.Errorf("expected ACTIVE, got %s", resp.Status)
	}

	calls := fake.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	got := calls[0]
	if got.PatientID != "patient-1" || got.Name != "John Doe" || got.Email != "john@email.com" {
		t.Errorf("unexpected request: %+v", got)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.contentTypes) != 1 || fake.contentTypes[0] != "application/grpc+proto" {
		t.Errorf("expected protobuf content type, got %v", fake.contentTypes)
	}
}

func TestClient_RemoteError(t *testing.T) {
	fake := &fakeBilling{err: status.Error(codes.Unavailable, "billing down")}
	client := newTestClient(t, fake, time.Second)

	_, err := client.CreateBillingAccount(context.Background(), "patient-1", "John Doe", "john@email.com")
	if err == nil {
		t.Fatal("expected error")
	}
	if status.Code(errors.Unwrap(err)) != codes.Unavailable {
		t.Errorf("expected Unavailable, got %v", err)
	}
}

func TestClient_RejectedStatus(t *testing.T) {
	tests := []struct {
		name string
		resp *AccountResponse
	}{
		{"failed status", &AccountResponse{AccountID: "acct-1", Status: StatusFailed}},
		{"rejected lowercase", &AccountResponse{AccountID: "acct-1", Status: "rejected"}},
		{"empty account id", &AccountResponse{Status: StatusActive}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, &fakeBilling{resp: tt.resp}, time.Second)
			_, err := client.CreateBillingAccount(context.Background(), "patient-1", "John Doe", "john@email.com")
			if !errors.Is(err, ErrRejected) {
				t.Errorf("expected ErrRejected, got %v", err)
			}
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	fake := &fakeBilling{
		resp:  &AccountResponse{AccountID: "acct-1", Status: StatusActive},
		delay: time.Second,
	}
	client := newTestClient(t, fake, 50*time.Millisecond)

	start := time.Now()
	_, err := client.CreateBillingAccount(context.Background(), "patient-1", "John Doe", "john@email.com")
	if err == nil {
		t.Fatal("expected deadline error")
	}
	if status.Code(errors.Unwrap(err)) != codes.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("call was not bounded by the client timeout")
	}
}

func TestDevServer(t *testing.T) {
	client := newTestClient(t, NewDevServer(zerolog.Nop()), time.Second)

	resp, err := client.CreateBillingAccount(context.Background(), "patient-1", "John Doe", "john@email.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AccountID == "" {
		t.Error("expected generated account id")
	}
	if resp.Status != StatusActive {
		t.Errorf("expected ACTIVE, got %s", resp.Status)
	}

	_, err = client.CreateBillingAccount(context.Background(), "", "John Doe", "")
	if status.Code(errors.Unwrap(err)) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}
