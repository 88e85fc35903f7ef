package evmchain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/klingon-exchange/ntvswap/internal/bytesorder"
)

// LockedEvent is the parsed form of the contract's `Locked` event (spec
// §4.1/§6: "Event parsing extracts {swap_id, token, amount, hashlock,
// timelock, sender}"). Hashlock is stored in natural (EVM) byte order per
// spec §9's byte-order-hazard note.
type LockedEvent struct {
	SwapID    [32]byte
	Recipient common.Address
	Sender    common.Address
	Token     common.Address
	Amount    *big.Int
	Hashlock  bytesorder.EVMHash32
	Timelock  *big.Int
	TxHash    common.Hash
	BlockNum  uint64
}

// ScanLocksTo filters `Locked` logs targeting recipient within [fromBlock,
// toBlock] (spec §4.1 `scan_locks_to`). Used by the LP orchestrator's
// detection phase (spec §4.6 step 1) with fromBlock = last_scanned_block+1.
func (c *Client) ScanLocksTo(ctx context.Context, recipient common.Address, fromBlock, toBlock uint64) ([]LockedEvent, error) {
	lockedEvent, ok := c.contract.ABI().Events["Locked"]
	if !ok {
		return nil, fmt.Errorf("evmchain[%s]: abi missing Locked event", c.name)
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contractAddress},
		Topics:    [][]common.Hash{{lockedEvent.ID}, nil, {recipient.Hash()}},
	}

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("evmchain[%s]: scan_locks_to: %w", c.name, err)
	}

	out := make([]LockedEvent, 0, len(logs))
	for _, lg := range logs {
		ev, err := c.parseLockedLog(lg)
		if err != nil {
			return nil, fmt.Errorf("evmchain[%s]: scan_locks_to: %w", c.name, err)
		}
		out = append(out, *ev)
	}
	return out, nil
}

func (c *Client) parseLockedLog(lg types.Log) (*LockedEvent, error) {
	// Topics[0] is the event signature; Topics[1..3] are the three indexed
	// params in declaration order (swapId, recipient, sender).
	if len(lg.Topics) < 4 {
		return nil, fmt.Errorf("malformed Locked log: expected 4 topics, got %d", len(lg.Topics))
	}
	var data struct {
		Token    common.Address
		Amount   *big.Int
		Hashlock [32]byte
		Timelock *big.Int
	}
	if err := c.contract.ABI().UnpackIntoInterface(&data, "Locked", lg.Data); err != nil {
		return nil, fmt.Errorf("unpack Locked data: %w", err)
	}
	hashlock, err := bytesorder.FromNaturalBytes(data.Hashlock[:])
	if err != nil {
		return nil, fmt.Errorf("Locked event hashlock: %w", err)
	}
	return &LockedEvent{
		SwapID:    lg.Topics[1],
		Recipient: common.BytesToAddress(lg.Topics[2].Bytes()),
		Sender:    common.BytesToAddress(lg.Topics[3].Bytes()),
		Token:     data.Token,
		Amount:    data.Amount,
		Hashlock:  hashlock,
		Timelock:  data.Timelock,
		TxHash:    lg.TxHash,
		BlockNum:  lg.BlockNumber,
	}, nil
}

// ClaimedEvent is the parsed form of the `Claimed` event — critically, it
// carries the revealed preimage, which is how the LP orchestrator learns S
// after the taker claims on a chain where the LP is not the claimer (spec
// §4.5 rule 2, §4.6 step 2).
type ClaimedEvent struct {
	SwapID   [32]byte
	Preimage [32]byte
	TxHash   common.Hash
	BlockNum uint64
}

// ExtractPreimageFromReceipt scans a claim transaction's receipt logs for the
// contract's `Claimed` event and returns the revealed preimage (spec §4.1
// extract_preimage's EVM-side analogue — here a log is authoritative rather
// than a script-sig scan, since the EVM HTLC is not UTXO-based).
func (c *Client) ExtractPreimageFromReceipt(receipt *types.Receipt) (*ClaimedEvent, error) {
	claimedEvent, ok := c.contract.ABI().Events["Claimed"]
	if !ok {
		return nil, fmt.Errorf("evmchain[%s]: abi missing Claimed event", c.name)
	}
	for _, lg := range receipt.Logs {
		if lg.Address != c.contractAddress {
			continue
		}
		if len(lg.Topics) == 0 || lg.Topics[0] != claimedEvent.ID {
			continue
		}
		var data struct {
			Preimage [32]byte
		}
		if err := c.contract.ABI().UnpackIntoInterface(&data, "Claimed", lg.Data); err != nil {
			return nil, fmt.Errorf("evmchain[%s]: unpack Claimed: %w", c.name, err)
		}
		var swapID [32]byte
		if len(lg.Topics) > 1 {
			swapID = lg.Topics[1]
		}
		return &ClaimedEvent{
			SwapID:   swapID,
			Preimage: data.Preimage,
			TxHash:   lg.TxHash,
			BlockNum: lg.BlockNumber,
		}, nil
	}
	return nil, fmt.Errorf("evmchain[%s]: no Claimed event found in receipt %s", c.name, receipt.TxHash)
}
