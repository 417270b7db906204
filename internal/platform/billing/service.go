package billing

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	serviceName         = "billing.BillingService"
	createAccountMethod = "/" + serviceName + "/CreateBillingAccount"
)

// Account statuses reported by the billing system.
const (
	StatusActive   = "ACTIVE"
	StatusFailed   = "FAILED"
	StatusRejected = "REJECTED"
)

// AccountRequest is billing.BillingRequest: patientId = 1, name = 2,
// email = 3.
type AccountRequest struct {
	PatientID string
	Name      string
	Email     string
}

func (r *AccountRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, r.PatientID)
	b = appendString(b, 2, r.Name)
	return appendString(b, 3, r.Email)
}

func (r *AccountRequest) consumeWire(b []byte) error {
	*r = AccountRequest{}
	return consumeFields(b, func(num protowire.Number, v string) {
		switch num {
		case 1:
			r.PatientID = v
		case 2:
			r.Name = v
		case 3:
			r.Email = v
		}
	})
}

// AccountResponse is billing.BillingResponse: accountId = 1, status = 2.
type AccountResponse struct {
	AccountID string
	Status    string
}

func (r *AccountResponse) appendWire(b []byte) []byte {
	b = appendString(b, 1, r.AccountID)
	return appendString(b, 2, r.Status)
}

func (r *AccountResponse) consumeWire(b []byte) error {
	*r = AccountResponse{}
	return consumeFields(b, func(num protowire.Number, v string) {
		switch num {
		case 1:
			r.AccountID = v
		case 2:
			r.Status = v
		}
	})
}

// Server is implemented by anything that can answer CreateBillingAccount.
type Server interface {
	CreateBillingAccount(ctx context.Context, req *AccountRequest) (*AccountResponse, error)
}

func createAccountHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AccountRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).CreateBillingAccount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: createAccountMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).CreateBillingAccount(ctx, req.(*AccountRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateBillingAccount", Handler: createAccountHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "billing_service.proto",
}

// RegisterServer attaches srv to a gRPC server under billing.BillingService.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}
