package api

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "happypaisa.wallet.v1.Wallet"

const (
	MethodGetBalance            = "GetBalance"
	MethodCreateTransaction     = "CreateTransaction"
	MethodGetTransaction        = "GetTransaction"
	MethodListTransactions      = "ListTransactions"
	MethodListChainTransactions = "ListChainTransactions"
	MethodTransfer              = "Transfer"
	MethodConvert               = "Convert"
	MethodGetChainAddress       = "GetChainAddress"
	MethodSync                  = "Sync"
	MethodHealth                = "Health"
	MethodGetSummary            = "GetSummary"
)

// FullMethod is the gRPC path of a wallet method, as seen by interceptors.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

type WalletServer interface {
	GetBalance(context.Context, *GetBalanceRequest) (*BalanceResponse, error)
	CreateTransaction(context.Context, *CreateTransactionRequest) (*TransactionResponse, error)
	GetTransaction(context.Context, *GetTransactionRequest) (*TransactionResponse, error)
	ListTransactions(context.Context, *ListTransactionsRequest) (*ListTransactionsResponse, error)
	ListChainTransactions(context.Context, *ListChainTransactionsRequest) (*ListChainTransactionsResponse, error)
	Transfer(context.Context, *TransferRequest) (*TransferResponse, error)
	Convert(context.Context, *ConvertRequest) (*ConvertResponse, error)
	GetChainAddress(context.Context, *GetChainAddressRequest) (*ChainAddressResponse, error)
	Sync(context.Context, *SyncRequest) (*SyncResponse, error)
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
	GetSummary(context.Context, *GetSummaryRequest) (*SummaryResponse, error)
}

func unary[Req, Resp any](name string, call func(WalletServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(WalletServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(WalletServer), ctx, req.(*Req))
			})
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WalletServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodGetBalance, WalletServer.GetBalance),
		unary(MethodCreateTransaction, WalletServer.CreateTransaction),
		unary(MethodGetTransaction, WalletServer.GetTransaction),
		unary(MethodListTransactions, WalletServer.ListTransactions),
		unary(MethodListChainTransactions, WalletServer.ListChainTransactions),
		unary(MethodTransfer, WalletServer.Transfer),
		unary(MethodConvert, WalletServer.Convert),
		unary(MethodGetChainAddress, WalletServer.GetChainAddress),
		unary(MethodSync, WalletServer.Sync),
		unary(MethodHealth, WalletServer.Health),
		unary(MethodGetSummary, WalletServer.GetSummary),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "happypaisa/wallet/v1",
}

func RegisterWalletServer(s grpc.ServiceRegistrar, srv WalletServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// WalletClient calls the wallet service over cc using the JSON codec.
type WalletClient struct {
	cc grpc.ClientConnInterface
}

func NewWalletClient(cc grpc.ClientConnInterface) *WalletClient {
	return &WalletClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WalletClient) GetBalance(ctx context.Context, in *GetBalanceRequest, opts ...grpc.CallOption) (*BalanceResponse, error) {
	return invoke[BalanceResponse](ctx, c.cc, MethodGetBalance, in, opts)
}

func (c *WalletClient) CreateTransaction(ctx context.Context, in *CreateTransactionRequest, opts ...grpc.CallOption) (*TransactionResponse, error) {
	return invoke[TransactionResponse](ctx, c.cc, MethodCreateTransaction, in, opts)
}

func (c *WalletClient) GetTransaction(ctx context.Context, in *GetTransactionRequest, opts ...grpc.CallOption) (*TransactionResponse, error) {
	return invoke[TransactionResponse](ctx, c.cc, MethodGetTransaction, in, opts)
}

func (c *WalletClient) ListTransactions(ctx context.Context, in *ListTransactionsRequest, opts ...grpc.CallOption) (*ListTransactionsResponse, error) {
	return invoke[ListTransactionsResponse](ctx, c.cc, MethodListTransactions, in, opts)
}

func (c *WalletClient) ListChainTransactions(ctx context.Context, in *ListChainTransactionsRequest, opts ...grpc.CallOption) (*ListChainTransactionsResponse, error) {
	return invoke[ListChainTransactionsResponse](ctx, c.cc, MethodListChainTransactions, in, opts)
}

func (c *WalletClient) Transfer(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	return invoke[TransferResponse](ctx, c.cc, MethodTransfer, in, opts)
}

func (c *WalletClient) Convert(ctx context.Context, in *ConvertRequest, opts ...grpc.CallOption) (*ConvertResponse, error) {
	return invoke[ConvertResponse](ctx, c.cc, MethodConvert, in, opts)
}

func (c *WalletClient) GetChainAddress(ctx context.Context, in *GetChainAddressRequest, opts ...grpc.CallOption) (*ChainAddressResponse, error) {
	return invoke[ChainAddressResponse](ctx, c.cc, MethodGetChainAddress, in, opts)
}

func (c *WalletClient) Sync(ctx context.Context, in *SyncRequest, opts ...grpc.CallOption) (*SyncResponse, error) {
	return invoke[SyncResponse](ctx, c.cc, MethodSync, in, opts)
}

func (c *WalletClient) Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	return invoke[HealthResponse](ctx, c.cc, MethodHealth, in, opts)
}

func (c *WalletClient) GetSummary(ctx context.Context, in *GetSummaryRequest, opts ...grpc.CallOption) (*SummaryResponse, error) {
	return invoke[SummaryResponse](ctx, c.cc, MethodGetSummary, in, opts)
}
