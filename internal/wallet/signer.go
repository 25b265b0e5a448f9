// Package wallet derives a per-request signer from a caller-supplied secret.
// The secret is transient: it is parsed, used, and never logged or persisted.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var errEmptySecret = errors.New("empty signing secret")

// Signer holds a decoded private key and its derived account.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex-encoded private key, with or without 0x prefix.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errEmptySecret
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(secret, "0x"))
	if err != nil {
		// Deliberately drop the original error; it can echo key material.
		return nil, errors.New("invalid signing secret")
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the account derived from the secret.
func (s *Signer) Address() common.Address { return s.address }

// SignTypedData produces a 65-byte EIP-712 signature with the Ethereum
// 27/28 recovery convention over (domain, types, primaryType, message).
func (s *Signer) SignTypedData(typed apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// SignTx signs a transaction for the given chain with the latest signer.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}
