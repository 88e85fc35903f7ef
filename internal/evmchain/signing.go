package evmchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// NewTransactor builds signing options from a private key for chainID. The
// LP's claim-signing and refund-signing keys (spec §9 "Hot/cold wallet
// separation") are passed in this form; the destination addresses baked into
// a Lock/Claim/Refund call are independent of who signs the transaction.
func (c *Client) NewTransactor(ctx context.Context, privateKey *ecdsa.PrivateKey) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("evmchain[%s]: new transactor: %w", c.name, err)
	}
	auth.Context = ctx
	return auth, nil
}

// AddressFromPrivateKey derives the EVM address controlled by a private key.
func AddressFromPrivateKey(privateKey *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}

// ParsePrivateKey parses a hex-encoded secp256k1 private key (the config
// surface's lp_claim_signing_key / lp_refund_signing_key fields).
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(hexKey)
}
