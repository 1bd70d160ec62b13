package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/happypaisa/internal/api"
	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	conn   *grpc.ClientConn
	client *api.WalletClient
	health healthpb.HealthClient
}

func withRequestID(ctx context.Context) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	if len(md.Get(common.RequestIDHeaderName)) > 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, common.RequestIDHeaderName, uuid.NewString())
}

func requestIDInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	return invoker(withRequestID(ctx), method, req, reply, cc, opts...)
}

// NewGRPCClient connects lazily to endpointURL; the first call dials.
func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(requestIDInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c := NewFromConn(conn)
	c.conn = conn
	return c, nil
}

// NewFromConn builds a client over an existing connection, which the
// caller keeps owning.
func NewFromConn(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{client: api.NewWalletClient(cc), health: healthpb.NewHealthClient(cc)}
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// mapError keeps transport failures apart from the wallet's own
// gateway_unavailable, which arrives with a detail.
func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.Unavailable {
		if _, hasDetail := api.Detail(err); !hasDetail {
			return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
		}
	}
	return api.FromStatus(err)
}

// Ping asks the standard health service whether the wallet is serving.
func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		return s.mapError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrUnavailable, resp.GetStatus())
	}
	return nil
}

func (s *GRPCClient) Balance(ctx context.Context, userID string) (*api.BalanceResponse, error) {
	resp, err := s.client.GetBalance(ctx, &api.GetBalanceRequest{UserID: userID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) CreateTransaction(ctx context.Context, req *api.CreateTransactionRequest) (*api.TransactionResponse, error) {
	resp, err := s.client.CreateTransaction(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Transaction(ctx context.Context, id string) (*api.TransactionResponse, error) {
	resp, err := s.client.GetTransaction(ctx, &api.GetTransactionRequest{ID: id})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) History(ctx context.Context, userID string, limit, offset int) ([]api.Transaction, error) {
	resp, err := s.client.ListTransactions(ctx, &api.ListTransactionsRequest{UserID: userID, Limit: limit, Offset: offset})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Transactions, nil
}

func (s *GRPCClient) ChainHistory(ctx context.Context, userID string, limit int) (*api.ListChainTransactionsResponse, error) {
	resp, err := s.client.ListChainTransactions(ctx, &api.ListChainTransactionsRequest{UserID: userID, Limit: limit})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Transfer(ctx context.Context, req *api.TransferRequest) (*api.TransferResponse, error) {
	resp, err := s.client.Transfer(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Convert(ctx context.Context, req *api.ConvertRequest) (*api.ConvertResponse, error) {
	resp, err := s.client.Convert(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) ChainAddress(ctx context.Context, userID string) (string, error) {
	resp, err := s.client.GetChainAddress(ctx, &api.GetChainAddressRequest{UserID: userID})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.Address, nil
}

func (s *GRPCClient) Sync(ctx context.Context, userID string) (*api.SyncResponse, error) {
	resp, err := s.client.Sync(ctx, &api.SyncRequest{UserID: userID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Health(ctx context.Context) (*api.HealthResponse, error) {
	resp, err := s.client.Health(ctx, &api.HealthRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Summary(ctx context.Context, userID string) (*api.SummaryResponse, error) {
	resp, err := s.client.GetSummary(ctx, &api.GetSummaryRequest{UserID: userID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

var _ Client = (*GRPCClient)(nil)
