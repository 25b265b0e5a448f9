// Package permit2 implements the gas-less approval workflow: signing the
// EIP-712 permit an aggregator attaches to a quote and splicing the signature
// into the transaction payload in the aggregator's byte-exact v2 convention.
package permit2

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/wallet"
)

// signatureLengthPrefixBytes is the width of the big-endian length word
// spliced between calldata and signature. Dictated by the aggregator's v2
// calldata convention; must be byte-exact.
const signatureLengthPrefixBytes = 32

// ErrNoPermit2 is returned when a quote carries no permit block.
var ErrNoPermit2 = domain.NewError(domain.ErrValidation, "quote carries no permit2 data")

// Detect reports whether the adapter attached a signable permit block.
func Detect(q *domain.SwapQuote) bool {
	return q != nil && q.Permit2 != nil
}

// Sign produces the EIP-712 signature for a quote's permit block. The
// upstream types and domain pass through unchanged; a missing EIP712Domain
// type entry is injected (apitypes requires it for hashing), and a missing
// domain chainId is filled from the request chain.
func Sign(chainID uint64, signer *wallet.Signer, payload domain.EIP712Payload) ([]byte, error) {
	typed := apitypes.TypedData{
		Types:       payload.Types,
		Domain:      payload.Domain,
		PrimaryType: payload.PrimaryType,
		Message:     payload.Message,
	}
	if _, ok := typed.Types["EIP712Domain"]; !ok {
		typed.Types = withDomainType(payload.Types, payload.Domain)
	}
	if typed.Domain.ChainId == nil {
		typed.Domain.ChainId = math.NewHexOrDecimal256(int64(chainID))
	}
	sig, err := signer.SignTypedData(typed)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInternal, "permit2 signing failed", err)
	}
	return sig, nil
}

// withDomainType copies the type map and adds a canonical EIP712Domain entry
// matching the fields the domain actually sets.
func withDomainType(types apitypes.Types, d apitypes.TypedDataDomain) apitypes.Types {
	out := make(apitypes.Types, len(types)+1)
	for k, v := range types {
		out[k] = v
	}
	var entry []apitypes.Type
	if d.Name != "" {
		entry = append(entry, apitypes.Type{Name: "name", Type: "string"})
	}
	if d.Version != "" {
		entry = append(entry, apitypes.Type{Name: "version", Type: "string"})
	}
	if d.ChainId != nil {
		entry = append(entry, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if d.VerifyingContract != "" {
		entry = append(entry, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if d.Salt != "" {
		entry = append(entry, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	out["EIP712Domain"] = entry
	return out
}

// Splice appends the signature to the original calldata behind a 32-byte
// big-endian length word:
//
//	modified = original || uint256_be(len(signature)) || signature
func Splice(originalData string, signature []byte) (string, error) {
	original, err := hexutil.Decode(originalData)
	if err != nil {
		return "", domain.WrapError(domain.ErrValidation, "invalid transaction data", err)
	}
	var prefix [signatureLengthPrefixBytes]byte
	big.NewInt(int64(len(signature))).FillBytes(prefix[:])

	out := make([]byte, 0, len(original)+signatureLengthPrefixBytes+len(signature))
	out = append(out, original...)
	out = append(out, prefix[:]...)
	out = append(out, signature...)
	return hexutil.Encode(out), nil
}

// ProcessedQuote is the full output of the permit2 workflow for one quote.
type ProcessedQuote struct {
	OriginalTxData string              `json:"originalTxData"`
	Signature      string              `json:"signature"`
	ModifiedTxData string              `json:"modifiedTxData"`
	Permit2Data    *domain.Permit2Data `json:"permit2Data"`
}

// ProcessQuote verifies the permit block is present, signs it and splices the
// signature into the payload.
func ProcessQuote(chainID uint64, signer *wallet.Signer, q *domain.SwapQuote) (*ProcessedQuote, error) {
	if !Detect(q) {
		return nil, ErrNoPermit2
	}
	sig, err := Sign(chainID, signer, q.Permit2.EIP712)
	if err != nil {
		return nil, err
	}
	modified, err := Splice(q.Data, sig)
	if err != nil {
		return nil, err
	}
	return &ProcessedQuote{
		OriginalTxData: q.Data,
		Signature:      hexutil.Encode(sig),
		ModifiedTxData: modified,
		Permit2Data:    q.Permit2,
	}, nil
}

// CreateSignedQuote returns a copy of the quote whose Data carries the
// spliced signature, ready for submission.
func CreateSignedQuote(chainID uint64, signer *wallet.Signer, q *domain.SwapQuote) (*domain.SwapQuote, error) {
	processed, err := ProcessQuote(chainID, signer, q)
	if err != nil {
		return nil, err
	}
	signed := *q
	signed.Data = processed.ModifiedTxData
	return &signed, nil
}

// Info summarises a permit block for logs without touching secrets.
type Info struct {
	Type        string   `json:"type"`
	Hash        string   `json:"hash"`
	PrimaryType string   `json:"primaryType"`
	Domain      string   `json:"domain"`
	MessageKeys []string `json:"messageKeys"`
}

// GetInfo extracts the loggable shape of a quote's permit block.
func GetInfo(q *domain.SwapQuote) (*Info, error) {
	if !Detect(q) {
		return nil, ErrNoPermit2
	}
	p := q.Permit2
	keys := make([]string, 0, len(p.EIP712.Message))
	for k := range p.EIP712.Message {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &Info{
		Type:        p.Type,
		Hash:        p.Hash,
		PrimaryType: p.EIP712.PrimaryType,
		Domain:      fmt.Sprintf("%s v%s", p.EIP712.Domain.Name, p.EIP712.Domain.Version),
		MessageKeys: keys,
	}, nil
}
