package evmchain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestParsedHTLCABIHasMandatoryFunctions(t *testing.T) {
	parsed, err := parsedHTLCABI()
	if err != nil {
		t.Fatalf("parsedHTLCABI: %v", err)
	}
	for _, name := range []string{"lock", "claim", "refund", "swaps"} {
		if _, ok := parsed.Methods[name]; !ok {
			t.Errorf("expected method %q in abi", name)
		}
	}
	for _, name := range []string{"Locked", "Claimed", "Refunded"} {
		if _, ok := parsed.Events[name]; !ok {
			t.Errorf("expected event %q in abi", name)
		}
	}
}

func TestParseLockedLog(t *testing.T) {
	parsed, err := parsedHTLCABI()
	if err != nil {
		t.Fatalf("parsedHTLCABI: %v", err)
	}
	contractAddr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	c := &Client{
		contract:        bind.NewBoundContract(contractAddr, parsed, nil, nil, nil),
		contractAddress: contractAddr,
	}

	var swapID, hashlock [32]byte
	swapID[0] = 0x01
	hashlock[0] = 0x02
	token := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")
	sender := common.HexToAddress("0x4444444444444444444444444444444444444444")
	amount := big.NewInt(5_000_000)
	timelock := big.NewInt(1_700_000_000)

	packed, err := parsed.Events["Locked"].Inputs.NonIndexed().Pack(token, amount, hashlock, timelock)
	if err != nil {
		t.Fatalf("pack Locked data: %v", err)
	}

	lg := types.Log{
		Address: contractAddr,
		Topics: []common.Hash{
			parsed.Events["Locked"].ID,
			common.Hash(swapID),
			recipient.Hash(),
			sender.Hash(),
		},
		Data:        packed,
		TxHash:      common.HexToHash("0xabc"),
		BlockNumber: 12345,
	}

	ev, err := c.parseLockedLog(lg)
	if err != nil {
		t.Fatalf("parseLockedLog: %v", err)
	}
	if ev.SwapID != common.Hash(swapID) {
		t.Errorf("swap id mismatch")
	}
	if ev.Recipient != recipient || ev.Sender != sender || ev.Token != token {
		t.Errorf("address mismatch: %+v", ev)
	}
	if ev.Amount.Cmp(amount) != 0 || ev.Timelock.Cmp(timelock) != 0 {
		t.Errorf("amount/timelock mismatch: %+v", ev)
	}
	if ev.Hashlock.Bytes()[0] != hashlock[0] {
		t.Errorf("hashlock mismatch: %x", ev.Hashlock.Bytes())
	}
}

func TestExtractPreimageFromReceipt(t *testing.T) {
	parsed, err := parsedHTLCABI()
	if err != nil {
		t.Fatalf("parsedHTLCABI: %v", err)
	}
	contractAddr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	c := &Client{
		contract:        bind.NewBoundContract(contractAddr, parsed, nil, nil, nil),
		contractAddress: contractAddr,
	}

	var swapID, preimage [32]byte
	swapID[0] = 0x09
	preimage[0] = 0x42

	packed, err := parsed.Events["Claimed"].Inputs.NonIndexed().Pack(preimage)
	if err != nil {
		t.Fatalf("pack Claimed data: %v", err)
	}

	receipt := &types.Receipt{
		TxHash: common.HexToHash("0xdead"),
		Logs: []*types.Log{
			{
				Address:     contractAddr,
				Topics:      []common.Hash{parsed.Events["Claimed"].ID, common.Hash(swapID)},
				Data:        packed,
				BlockNumber: 999,
			},
		},
	}

	ev, err := c.ExtractPreimageFromReceipt(receipt)
	if err != nil {
		t.Fatalf("ExtractPreimageFromReceipt: %v", err)
	}
	if ev.Preimage != preimage {
		t.Errorf("preimage mismatch: %x", ev.Preimage)
	}
	if ev.SwapID != common.Hash(swapID) {
		t.Errorf("swap id mismatch")
	}
}
