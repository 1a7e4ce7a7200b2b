package ledger

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// realRPCClient adapts the solana-go RPC client to our RPCClient interface.
// The SDK exposes the options-taking signature lookup under a different
// method name, so the production client needs this thin bridge.
type realRPCClient struct {
	client *rpc.Client
}

// NewRPCClient creates an RPCClient backed by a real Solana node.
// Premium endpoints carry their API key in the URL:
//   - Helius: https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
//   - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
//   - Alchemy: https://solana-mainnet.g.alchemy.com/v2/YOUR-KEY
func NewRPCClient(rpcURL string) RPCClient {
	return &realRPCClient{
		client: rpc.New(rpcURL),
	}
}

func (r *realRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	return r.client.GetSignaturesForAddressWithOpts(ctx, address, opts)
}

func (r *realRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	return r.client.GetTransaction(ctx, signature, opts)
}
