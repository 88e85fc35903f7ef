// Package evmchain implements the read/submit/subscribe adapter for the
// quote-asset EVM chains (Polygon, Base, World Chain; spec §4.1 "EVM chain
// adapter"). It is grounded in the teacher's internal/contracts/htlc/client.go
// (ethclient/bind-based wrapper over a generated contract binding, context-
// first method signatures, typed event structs) but binds spec §6's mandatory
// HTLC ABI (lock/claim/refund/swaps + Locked/Claimed/Refunded) at runtime via
// accounts/abi/bind.NewBoundContract rather than an abigen-generated file,
// since the teacher's KlingonHTLC contract has a different (fee/DAO-aware)
// shape than this spec calls for.
package evmchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/klingon-exchange/ntvswap/internal/netguard"
)

// Client wraps a single EVM chain's HTLC contract and ERC-20 quote token.
type Client struct {
	eth             *ethclient.Client
	contract        *bind.BoundContract
	contractAddress common.Address
	chainID         *big.Int
	name            string
	reorgDepth      uint64
}

// NewClient dials rpcURL and binds the HTLC contract at contractAddress.
// rpcURL is validated against spec §4.1's SSRF-style endpoint rule before
// dialing.
func NewClient(ctx context.Context, name, rpcURL string, contractAddress common.Address, reorgDepth uint64, allowLoopback bool) (*Client, error) {
	if err := netguard.ValidateEndpoint(rpcURL, allowLoopback); err != nil {
		return nil, fmt.Errorf("evmchain[%s]: %w", name, err)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evmchain[%s]: dial: %w", name, err)
	}

	parsed, err := parsedHTLCABI()
	if err != nil {
		return nil, fmt.Errorf("evmchain[%s]: parse abi: %w", name, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("evmchain[%s]: chain id: %w", name, err)
	}

	bound := bind.NewBoundContract(contractAddress, parsed, eth, eth, eth)

	return &Client{
		eth:             eth,
		contract:        bound,
		contractAddress: contractAddress,
		chainID:         chainID,
		name:            name,
		reorgDepth:      reorgDepth,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.eth.Close() }

// Name returns the configured network name (e.g. "polygon").
func (c *Client) Name() string { return c.name }

// ChainID returns the chain's numeric id.
func (c *Client) ChainID() *big.Int { return c.chainID }

// ReorgDepth returns the configured confirmation depth N_reorg for this chain
// (spec §4.5, §5 — default 12 for EVM chains).
func (c *Client) ReorgDepth() uint64 { return c.reorgDepth }

// ContractAddress returns the bound HTLC contract address.
func (c *Client) ContractAddress() common.Address { return c.contractAddress }

// CurrentHeight returns the chain's current block number.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// BlockHash returns the canonical block hash at height, as currently seen by
// the node. Used by internal/reorg to detect a fork by comparing the hash
// previously observed at a height against the chain's present view of it.
func (c *Client) BlockHash(ctx context.Context, height uint64) (string, error) {
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return "", fmt.Errorf("evmchain[%s]: header at %d: %w", c.name, height, err)
	}
	return header.Hash().Hex(), nil
}

// SwapInfo is the parsed return of the contract's `swaps` view (spec §6).
type SwapInfo struct {
	Sender    common.Address
	Recipient common.Address
	Token     common.Address
	Amount    *big.Int
	Hashlock  [32]byte
	Timelock  *big.Int
	Withdrawn bool
	Refunded  bool
}

// GetSwap calls the contract's `swaps(bytes32)` view.
func (c *Client) GetSwap(ctx context.Context, swapID [32]byte) (*SwapInfo, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := c.contract.Call(opts, &out, "swaps", swapID); err != nil {
		return nil, fmt.Errorf("evmchain[%s]: get_swap: %w", c.name, err)
	}
	if len(out) != 8 {
		return nil, fmt.Errorf("evmchain[%s]: get_swap: unexpected return arity %d", c.name, len(out))
	}
	return &SwapInfo{
		Sender:    out[0].(common.Address),
		Recipient: out[1].(common.Address),
		Token:     out[2].(common.Address),
		Amount:    out[3].(*big.Int),
		Hashlock:  out[4].([32]byte),
		Timelock:  out[5].(*big.Int),
		Withdrawn: out[6].(bool),
		Refunded:  out[7].(bool),
	}, nil
}

// Lock submits the `lock` transaction (spec §4.1 `lock`; the caller is
// expected to have already approved the contract to pull `amount` of `token`
// from the sender, per spec §4.1 "following an ERC-20 approval" — see
// ApproveERC20).
func (c *Client) Lock(ctx context.Context, auth *bind.TransactOpts, swapID [32]byte, recipient, token common.Address, amount *big.Int, hashlock [32]byte, timelock *big.Int) (*types.Transaction, error) {
	auth.Context = ctx
	tx, err := c.contract.Transact(auth, "lock", swapID, recipient, token, amount, hashlock, timelock)
	if err != nil {
		return nil, fmt.Errorf("evmchain[%s]: lock: %w", c.name, err)
	}
	return tx, nil
}

// Claim submits the `claim` transaction, revealing preimage on-chain.
func (c *Client) Claim(ctx context.Context, auth *bind.TransactOpts, swapID [32]byte, preimage [32]byte) (*types.Transaction, error) {
	auth.Context = ctx
	tx, err := c.contract.Transact(auth, "claim", swapID, preimage)
	if err != nil {
		return nil, fmt.Errorf("evmchain[%s]: claim: %w", c.name, err)
	}
	return tx, nil
}

// Refund submits the `refund` transaction after the timelock has elapsed.
func (c *Client) Refund(ctx context.Context, auth *bind.TransactOpts, swapID [32]byte) (*types.Transaction, error) {
	auth.Context = ctx
	tx, err := c.contract.Transact(auth, "refund", swapID)
	if err != nil {
		return nil, fmt.Errorf("evmchain[%s]: refund: %w", c.name, err)
	}
	return tx, nil
}

// TransactionReceipt waits for and returns the receipt for a submitted tx,
// used by orchestrators to confirm a transaction reached N_reorg confirmations
// before treating its effects as final (spec §4.5).
func (c *Client) TransactionReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, c.eth, tx)
}
