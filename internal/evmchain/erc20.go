package evmchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const erc20ABIJSON = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[
    {"name":"spender","type":"address"},{"name":"amount","type":"uint256"}
  ],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"},{"name":"spender","type":"address"}
  ],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
    {"name":"account","type":"address"}
  ],"outputs":[{"name":"","type":"uint256"}]}
]`

// ERC20 is a minimal bound ERC-20 client, used to approve the HTLC contract
// to pull the quote token before Lock (spec §4.1 "following an ERC-20
// approval").
type ERC20 struct {
	contract *bind.BoundContract
	address  common.Address
}

// NewERC20 binds an ERC-20 token contract on an already-connected client.
func NewERC20(c *Client, tokenAddress common.Address) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("evmchain: parse erc20 abi: %w", err)
	}
	return &ERC20{
		contract: bind.NewBoundContract(tokenAddress, parsed, c.eth, c.eth, c.eth),
		address:  tokenAddress,
	}, nil
}

// Approve authorizes spender to transfer up to amount of the token on the
// caller's behalf.
func (e *ERC20) Approve(ctx context.Context, auth *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	auth.Context = ctx
	tx, err := e.contract.Transact(auth, "approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("evmchain: erc20 approve: %w", err)
	}
	return tx, nil
}

// Allowance returns the current spender allowance for owner.
func (e *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := e.contract.Call(opts, &out, "allowance", owner, spender); err != nil {
		return nil, fmt.Errorf("evmchain: erc20 allowance: %w", err)
	}
	return out[0].(*big.Int), nil
}

// BalanceOf returns the token balance of account.
func (e *ERC20) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := e.contract.Call(opts, &out, "balanceOf", account); err != nil {
		return nil, fmt.Errorf("evmchain: erc20 balanceOf: %w", err)
	}
	return out[0].(*big.Int), nil
}
