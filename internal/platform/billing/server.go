package billing

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DevServer is a stand-in billing system for local runs. Every well-formed
// request gets a fresh ACTIVE account.
type DevServer struct {
	logger zerolog.Logger
}

func NewDevServer(logger zerolog.Logger) *DevServer {
	return &DevServer{logger: logger}
}

func (s *DevServer) CreateBillingAccount(_ context.Context, req *AccountRequest) (*AccountResponse, error) {
	if req.PatientID == "" || req.Email == "" {
		return nil, status.Error(codes.InvalidArgument, "patientId and email are required")
	}
	accountID := uuid.NewString()
	s.logger.Info().
		Str("patient_id", req.PatientID).
		Str("email", req.Email).
		Str("account_id", accountID).
		Msg("billing account created")
	return &AccountResponse{AccountID: accountID, Status: StatusActive}, nil
}

// NewGRPCServer returns a gRPC server with srv registered on it, speaking
// the same protobuf encoding as the client.
func NewGRPCServer(srv Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ForceServerCodec(protoCodec{})}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServer(s, srv)
	return s
}

// ListenAndServe blocks serving srv on addr until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, srv Server, logger zerolog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s := NewGRPCServer(srv)
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	logger.Info().Str("addr", addr).Msg("billing gRPC server started")
	if err := s.Serve(lis); err != nil {
		return fmt.Errorf("serve billing: %w", err)
	}
	return nil
}
