package stub

import (
	"context"

	"clawdvault-indexer/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo
	Accounts     map[string]*solana.AccountInfo

	// Errs maps a signature, address, or pubkey to an error to return
	// instead of data.
	Errs map[string]error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Accounts:     make(map[string]*solana.AccountInfo),
		Errs:         make(map[string]error),
	}
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// GetTransaction retrieves a transaction by signature from the stub
// store. Unknown signatures return nil, matching the HTTP client.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	if err, ok := c.Errs[signature]; ok {
		return nil, err
	}
	return c.Transactions[signature], nil
}

// GetSignaturesForAddress retrieves signatures for an address from the stub store.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	if err, ok := c.Errs[address]; ok {
		return nil, err
	}

	sigs := c.Signatures[address]

	// Apply limit if specified
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}

	return sigs, nil
}

// GetAccountInfo retrieves account info from the stub store. Unknown
// accounts return nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if err, ok := c.Errs[pubkey]; ok {
		return nil, err
	}
	return c.Accounts[pubkey], nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.Transactions[tx.Signature] = tx
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.Signatures[address] = sigs
}
