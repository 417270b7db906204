package billing

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrRejected is returned when the billing system answers but does not
// report a usable account.
var ErrRejected = errors.New("billing account rejected")

type ClientConfig struct {
	Addr    string
	Timeout time.Duration
	TLS     bool
}

// Client provisions billing accounts over gRPC.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	logger  zerolog.Logger
}

// NewClient prepares a lazily connected client; no network I/O happens
// until the first call.
func NewClient(cfg ClientConfig, logger zerolog.Logger, opts ...grpc.DialOption) (*Client, error) {
	creds := insecure.NewCredentials()
	if cfg.TLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(protoCodec{})),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("billing client %s: %w", cfg.Addr, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	logger.Info().Str("addr", cfg.Addr).Bool("tls", cfg.TLS).Msg("billing client configured")
	return &Client{
		conn:    conn,
		timeout: timeout,
		logger:  logger.With().Str("component", "billing").Logger(),
	}, nil
}

// CreateBillingAccount asks the billing system to open an account for the
// patient. Transport errors, deadline expiry and non-success statuses are
// all returned as errors.
func (c *Client) CreateBillingAccount(ctx context.Context, patientID, name, email string) (*AccountResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &AccountRequest{PatientID: patientID, Name: name, Email: email}
	resp := new(AccountResponse)
	if err := c.conn.Invoke(ctx, createAccountMethod, req, resp); err != nil {
		return nil, fmt.Errorf("create billing account for %s: %w", patientID, err)
	}

	c.logger.Info().
		Str("patient_id", patientID).
		Str("account_id", resp.AccountID).
		Str("status", resp.Status).
		Msg("received billing response")

	if resp.AccountID == "" {
		return resp, fmt.Errorf("%w: empty account id for patient %s", ErrRejected, patientID)
	}
	switch strings.ToUpper(resp.Status) {
	case StatusFailed, StatusRejected:
		return resp, fmt.Errorf("%w: status %s for patient %s", ErrRejected, resp.Status, patientID)
	}
	return resp, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
