package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/happypaisa/internal/api"
	"github.com/dmitrijs2005/happypaisa/internal/client/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records the last request and answers with preset values.
type fakeClient struct {
	closed bool

	balance   *api.BalanceResponse
	history   []api.Transaction
	chain     *api.ListChainTransactionsResponse
	tx        *api.TransactionResponse
	transfer  *api.TransferResponse
	convert   *api.ConvertResponse
	address   string
	sync      *api.SyncResponse
	health    *api.HealthResponse
	summary   *api.SummaryResponse
	err       error
	lastUser  string
	lastLimit int
	lastEntry *api.CreateTransactionRequest
	lastXfer  *api.TransferRequest
	lastConv  *api.ConvertRequest
}

func (f *fakeClient) Close() error               { f.closed = true; return nil }
func (f *fakeClient) Ping(context.Context) error { return f.err }

func (f *fakeClient) Health(context.Context) (*api.HealthResponse, error) {
	return f.health, f.err
}

func (f *fakeClient) Balance(_ context.Context, userID string) (*api.BalanceResponse, error) {
	f.lastUser = userID
	return f.balance, f.err
}

func (f *fakeClient) CreateTransaction(_ context.Context, req *api.CreateTransactionRequest) (*api.TransactionResponse, error) {
	f.lastEntry = req
	if f.err != nil {
		return nil, f.err
	}
	return &api.TransactionResponse{Transaction: api.Transaction{ID: req.ID, UserID: req.UserID, Kind: req.Kind, Amount: req.Amount, Status: "confirmed"}}, nil
}

func (f *fakeClient) Transaction(_ context.Context, id string) (*api.TransactionResponse, error) {
	return f.tx, f.err
}

func (f *fakeClient) History(_ context.Context, userID string, limit, _ int) ([]api.Transaction, error) {
	f.lastUser, f.lastLimit = userID, limit
	return f.history, f.err
}

func (f *fakeClient) ChainHistory(_ context.Context, userID string, limit int) (*api.ListChainTransactionsResponse, error) {
	f.lastUser, f.lastLimit = userID, limit
	return f.chain, f.err
}

func (f *fakeClient) Transfer(_ context.Context, req *api.TransferRequest) (*api.TransferResponse, error) {
	f.lastXfer = req
	return f.transfer, f.err
}

func (f *fakeClient) Convert(_ context.Context, req *api.ConvertRequest) (*api.ConvertResponse, error) {
	f.lastConv = req
	return f.convert, f.err
}

func (f *fakeClient) ChainAddress(_ context.Context, userID string) (string, error) {
	f.lastUser = userID
	return f.address, f.err
}

func (f *fakeClient) Sync(_ context.Context, userID string) (*api.SyncResponse, error) {
	f.lastUser = userID
	return f.sync, f.err
}

func (f *fakeClient) Summary(_ context.Context, userID string) (*api.SummaryResponse, error) {
	f.lastUser = userID
	return f.summary, f.err
}

func run(t *testing.T, f *fakeClient, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(func(string) (client.Client, error) { return f, nil })
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand(GRPCDialer)
	require.NotNil(t, cmd)
	assert.Equal(t, "hpctl", cmd.Use)

	for _, name := range []string{"balance", "history", "chain-history", "tx", "credit", "debit", "transfer", "convert", "address", "sync", "health", "summary"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand(GRPCDialer)

	out := cmd.PersistentFlags().Lookup("output")
	require.NotNil(t, out)
	assert.Equal(t, "o", out.Shorthand)
	assert.Equal(t, "text", out.DefValue)

	addr := cmd.PersistentFlags().Lookup("addr")
	require.NotNil(t, addr)
	assert.Equal(t, "a", addr.Shorthand)
}

func TestRoot_FlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hpctl.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server_addr":"file:1","output":"json"}`), 0o600))

	var dialed string
	f := &fakeClient{address: "HPabc"}
	cmd := NewRootCommand(func(addr string) (client.Client, error) { dialed = addr; return f, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"-c", path, "-a", "flag:2", "address", "alice"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "flag:2", dialed)
	assert.JSONEq(t, `{"user_id":"alice","address":"HPabc"}`, out.String())
	assert.True(t, f.closed)
}

func TestRoot_InvalidOutput(t *testing.T) {
	_, err := run(t, &fakeClient{}, "-o", "xml", "health")
	assert.ErrorContains(t, err, "invalid output")
}

func TestRoot_DialFailure(t *testing.T) {
	cmd := NewRootCommand(func(string) (client.Client, error) { return nil, errors.New("refused") })
	cmd.SetArgs([]string{"health"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	assert.ErrorContains(t, err, "refused")
}
