package execution

import (
	"strings"

	"github.com/omnidex/swapgate/internal/domain"
)

// translation maps substrings of upstream error messages to the user-facing
// message and kind. First match wins; order is most-specific first.
var translations = []struct {
	needle  string
	kind    domain.ErrorKind
	message string
}{
	{"insufficient funds", domain.ErrInsufficientFunds, "wallet balance is too low to cover the swap and gas"},
	{"gas required exceeds", domain.ErrGasEstimation, "gas estimation failed; the swap would likely revert"},
	{"cannot estimate gas", domain.ErrGasEstimation, "gas estimation failed; the swap would likely revert"},
	{"insufficient_output_amount", domain.ErrSlippage, "price moved beyond the slippage tolerance"},
	{"slippage", domain.ErrSlippage, "price moved beyond the slippage tolerance"},
	{"deadline", domain.ErrDeadline, "the swap deadline passed before execution"},
	{"expired", domain.ErrDeadline, "the swap deadline passed before execution"},
	{"nonce too low", domain.ErrNonce, "transaction nonce conflict; another transaction was sent from this account"},
	{"replacement transaction underpriced", domain.ErrReplacement, "a pending transaction with the same nonce blocks this one"},
	{"connection refused", domain.ErrNetwork, "the blockchain RPC endpoint is unreachable"},
	{"timeout", domain.ErrNetwork, "the network request timed out"},
	{"network", domain.ErrNetwork, "a network error interrupted execution"},
}

// translateError converts an upstream failure into a user-facing classified
// error. Unrecognised messages pass through as upstream errors.
func translateError(err error) *domain.Error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, t := range translations {
		if strings.Contains(msg, t.needle) {
			return domain.WrapError(t.kind, t.message, err)
		}
	}
	return domain.WrapError(domain.ErrUpstream, "swap execution failed", err)
}
