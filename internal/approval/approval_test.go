package approval

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/omnidex/swapgate/internal/chains"
	"github.com/omnidex/swapgate/internal/domain"
)

const (
	testToken   = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	testOwner   = "0x1111111111111111111111111111111111111111"
	testSpender = "0x2222222222222222222222222222222222222222"
)

// fakeContractBackend answers allowance calls with canned values.
type fakeContractBackend struct {
	allowance      *big.Int
	permit2Amount  *big.Int
	permit2Expires uint64
	code           []byte
	callErr        error
	permit2CallErr error
}

func (b *fakeContractBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if call.To != nil && *call.To == common.HexToAddress(chains.Permit2Address) {
		if b.permit2CallErr != nil {
			return nil, b.permit2CallErr
		}
		out := make([]byte, 96)
		b.permit2Amount.FillBytes(out[:32])
		new(big.Int).SetUint64(b.permit2Expires).FillBytes(out[32:64])
		return out, nil
	}
	if b.callErr != nil {
		return nil, b.callErr
	}
	out := make([]byte, 32)
	b.allowance.FillBytes(out)
	return out, nil
}

func (b *fakeContractBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return b.code, nil
}

func checkerOver(backend ContractBackend, probe ProbeFunc) *Checker {
	return NewChecker(func(uint64) (ContractBackend, error) { return backend, nil }, probe)
}

func TestIsApprovalNeededNativeToken(t *testing.T) {
	c := checkerOver(&fakeContractBackend{}, nil)
	for _, token := range []string{chains.NativeTokenZero, chains.NativeTokenEee} {
		needed, err := c.IsApprovalNeeded(context.Background(), 1, token, testOwner, testSpender, big.NewInt(1))
		if err != nil {
			t.Fatalf("IsApprovalNeeded(%s): %v", token, err)
		}
		if needed {
			t.Errorf("native token %s must never need approval", token)
		}
	}
}

func TestIsApprovalNeededERC20Path(t *testing.T) {
	// Chain without Permit2 forces the plain ERC-20 read.
	backend := &fakeContractBackend{allowance: big.NewInt(500)}
	c := checkerOver(backend, nil)

	needed, err := c.IsApprovalNeeded(context.Background(), chains.ZkSyncEra, testToken, testOwner, testSpender, big.NewInt(1000))
	if err != nil {
		t.Fatalf("IsApprovalNeeded: %v", err)
	}
	if !needed {
		t.Error("allowance 500 < amount 1000 must need approval")
	}

	backend.allowance = big.NewInt(2000)
	needed, err = c.IsApprovalNeeded(context.Background(), chains.ZkSyncEra, testToken, testOwner, testSpender, big.NewInt(1000))
	if err != nil {
		t.Fatalf("IsApprovalNeeded: %v", err)
	}
	if needed {
		t.Error("allowance 2000 >= amount 1000 must not need approval")
	}
}

func TestIsPermit2ApprovalNeeded(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		amount  *big.Int
		expires uint64
		want    bool
	}{
		{"sufficient and fresh", big.NewInt(2000), uint64(now.Add(time.Hour).Unix()), false},
		{"sufficient but expired", big.NewInt(2000), uint64(now.Add(-time.Hour).Unix()), true},
		{"short allowance", big.NewInt(10), uint64(now.Add(time.Hour).Unix()), true},
		{"zero expiration is expired", big.NewInt(2000), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeContractBackend{
				code:           []byte{0x60},
				permit2Amount:  tt.amount,
				permit2Expires: tt.expires,
			}
			c := checkerOver(backend, nil)
			c.now = func() time.Time { return now }

			needed, err := c.IsApprovalNeeded(context.Background(), chains.Ethereum, testToken, testOwner, testSpender, big.NewInt(1000))
			if err != nil {
				t.Fatalf("IsApprovalNeeded: %v", err)
			}
			if needed != tt.want {
				t.Errorf("want=%v got=%v", tt.want, needed)
			}
		})
	}
}

// A failed Permit2 read defaults to "approval needed" rather than an error.
func TestPermit2ReadFailureDefaultsToNeeded(t *testing.T) {
	backend := &fakeContractBackend{
		code:           []byte{0x60},
		permit2CallErr: errors.New("rpc down"),
	}
	c := checkerOver(backend, nil)

	needed, err := c.IsApprovalNeeded(context.Background(), chains.Ethereum, testToken, testOwner, testSpender, big.NewInt(1000))
	if err != nil {
		t.Fatalf("IsApprovalNeeded: %v", err)
	}
	if !needed {
		t.Error("permit2 read failure must default to approval needed")
	}
}

func TestSpenderForPermit2(t *testing.T) {
	c := checkerOver(&fakeContractBackend{}, nil)
	addr, err := c.SpenderFor(context.Background(), chains.Ethereum, domain.ApprovalPermit2)
	if err != nil {
		t.Fatalf("SpenderFor: %v", err)
	}
	if addr != common.HexToAddress(chains.Permit2Address) {
		t.Errorf("permit2 spender: want=%s got=%s", chains.Permit2Address, addr)
	}
}

func TestSpenderProbeAndCache(t *testing.T) {
	probes := 0
	probe := func(context.Context, uint64) (string, error) {
		probes++
		return testSpender, nil
	}
	c := checkerOver(&fakeContractBackend{}, probe)

	for i := 0; i < 3; i++ {
		addr, err := c.SpenderFor(context.Background(), chains.Ethereum, domain.ApprovalAllowanceHolder)
		if err != nil {
			t.Fatalf("SpenderFor: %v", err)
		}
		if addr != common.HexToAddress(testSpender) {
			t.Errorf("spender: want=%s got=%s", testSpender, addr)
		}
	}
	if probes != 1 {
		t.Errorf("probe calls within TTL: want=1 got=%d", probes)
	}

	// Expired cache entry probes again.
	c.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	if _, err := c.SpenderFor(context.Background(), chains.Ethereum, domain.ApprovalAllowanceHolder); err != nil {
		t.Fatalf("SpenderFor after expiry: %v", err)
	}
	if probes != 2 {
		t.Errorf("probe calls after TTL: want=2 got=%d", probes)
	}
}

func TestSpenderProbeFailureFallsBack(t *testing.T) {
	probe := func(context.Context, uint64) (string, error) {
		return "", errors.New("probe down")
	}
	c := checkerOver(&fakeContractBackend{}, probe)

	addr, err := c.SpenderFor(context.Background(), chains.Ethereum, domain.ApprovalAllowanceHolder)
	if err != nil {
		t.Fatalf("SpenderFor: %v", err)
	}
	want, _ := chains.FallbackAllowanceHolder(chains.Ethereum)
	if addr != want {
		t.Errorf("fallback spender: want=%s got=%s", want, addr)
	}

	// Unknown chain: no probe, no fallback.
	if _, err := c.SpenderFor(context.Background(), 999, domain.ApprovalAllowanceHolder); err == nil {
		t.Error("unknown chain must fail spender resolution")
	}
}

func TestBuildApprovalTx(t *testing.T) {
	tx, err := BuildApprovalTx(testToken, testSpender, big.NewInt(1000))
	if err != nil {
		t.Fatalf("BuildApprovalTx: %v", err)
	}
	if tx.To != common.HexToAddress(testToken).Hex() {
		t.Errorf("to: want=%s got=%s", testToken, tx.To)
	}
	if tx.Value != "0" {
		t.Errorf("value: want=0 got=%s", tx.Value)
	}

	data, err := hexutil.Decode(tx.Data)
	if err != nil {
		t.Fatalf("decoding calldata: %v", err)
	}
	// approve(address,uint256) selector.
	if got := hexutil.Encode(data[:4]); got != "0x095ea7b3" {
		t.Errorf("selector: want=0x095ea7b3 got=%s", got)
	}
	if !strings.Contains(strings.ToLower(tx.Data), strings.ToLower(testSpender[2:])) {
		t.Error("calldata does not carry the spender")
	}
}
