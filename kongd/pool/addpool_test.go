package pool

import (
	"context"
	"testing"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
	"github.com/KongSwap/kong-sub000/kongd/identity"
	"github.com/KongSwap/kong-sub000/kongd/journal"
	"github.com/KongSwap/kong-sub000/kongd/ledgerclient"
	"github.com/KongSwap/kong-sub000/kongd/tokens"
)

// fakeLedger is a minimal in-memory ledgerclient.Client stub for tests; it
// never talks to a real ledger (spec.md §1 names that as an external
// collaborator, out of scope here).
type fakeLedger struct {
	transferErr             error
	transferFromFailOnToken uint32
	transfers               int // successful Transfer calls
}

func (f *fakeLedger) Transfer(ctx context.Context, tokenID uint32, amount *bignat.BigNat, to ledgerclient.Account, fee *bignat.BigNat, memo []byte, createdAtTimeNs *uint64) (*bignat.BigNat, error) {
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	f.transfers++
	return bignat.FromUint64(1), nil
}

func (f *fakeLedger) TransferFrom(ctx context.Context, tokenID uint32, owner, to ledgerclient.Account, amount *bignat.BigNat) (*bignat.BigNat, error) {
	if f.transferFromFailOnToken != 0 && tokenID == f.transferFromFailOnToken {
		return nil, errAddPoolLegFailed{}
	}
	return bignat.FromUint64(1), nil
}

type errAddPoolLegFailed struct{}

func (errAddPoolLegFailed) Error() string { return "ledger unavailable" }

func (f *fakeLedger) BalanceOf(ctx context.Context, tokenID uint32, account ledgerclient.Account) (*bignat.BigNat, error) {
	return bignat.Zero(), nil
}

func (f *fakeLedger) Allowance(ctx context.Context, tokenID uint32, owner, spender ledgerclient.Account) (*ledgerclient.Allowance, error) {
	return &ledgerclient.Allowance{Amount: bignat.Zero()}, nil
}

func (f *fakeLedger) GetBlocks(ctx context.Context, tokenID uint32, start, length uint64) (*ledgerclient.BlockRange, error) {
	return &ledgerclient.BlockRange{Start: start, Length: length}, nil
}

func (f *fakeLedger) VerifyTransfer(ctx context.Context, tokenID uint32, txID ledgerclient.TxID, expectAmount *bignat.BigNat, expectTo ledgerclient.Account, expiresAtNs uint64) error {
	return nil
}

func newAddPoolEngine(t *testing.T) (*Engine, *tokens.Token, *tokens.Token) {
	t.Helper()
	tokStore := tokens.NewStore()
	poolStore := NewStore()
	a, err := tokStore.Insert(&tokens.Token{Chain: tokens.ChainIC, Symbol: "A", Address: "a", Decimals: 8, Fee: bignat.Zero()})
	if err != nil {
		t.Fatalf("insert token A: %v", err)
	}
	b, err := tokStore.Insert(&tokens.Token{Chain: tokens.ChainIC, Symbol: "B", Address: "b", Decimals: 8, Fee: bignat.Zero()})
	if err != nil {
		t.Fatalf("insert token B: %v", err)
	}
	j := journal.New()
	var tick uint64
	now := func() uint64 { tick++; return tick }
	return NewEngine(poolStore, tokStore, &fakeLedger{}, j, identity.NewRegistry(false), now, 30, 0), a, b
}

func mustAmt(t *testing.T, s string) *bignat.BigNat {
	t.Helper()
	n, err := bignat.FromString(s)
	if err != nil {
		t.Fatalf("bignat.FromString(%q): %v", s, err)
	}
	return n
}

// TestAddPoolMintsSqrtOfProduct reproduces spec.md §8 scenario 3:
// add_pool(A=10_000*10^8, B=10_000*10^8, lp_fee_bps=30) mints
// sqrt(10_000*10^8 * 10_000*10^8) = 10_000*10^8 LP.
func TestAddPoolMintsSqrtOfProduct(t *testing.T) {
	e, a, b := newAddPoolEngine(t)
	amt := mustAmt(t, "1000000000000") // 10_000 * 10^8
	req := &AddRequest{
		UserID:    "alice",
		Token0Sym: a.Symbol,
		Amount0:   amt,
		Token1Sym: b.Symbol,
		Amount1:   amt,
	}
	reply, err := e.AddPool(context.Background(), req)
	if err != nil {
		t.Fatalf("AddPool: %v", err)
	}
	if reply.Status != journal.StatusSuccess {
		t.Fatalf("expected success, got %s", reply.Status)
	}
	want := mustAmt(t, "1000000000000")
	if reply.LPAmount.Cmp(want) != 0 {
		t.Fatalf("expected LP mint %s, got %s", want, reply.LPAmount)
	}

	p, ok := e.Pools.GetByID(reply.PoolID)
	if !ok {
		t.Fatal("pool not registered")
	}
	if p.LPFeeBps != 30 {
		t.Fatalf("expected lp_fee_bps 30, got %d", p.LPFeeBps)
	}
	pos := e.Pools.GetLPPosition("alice", reply.LPTokenID)
	if pos.Amount.Cmp(want) != 0 {
		t.Fatalf("expected alice's LP position to equal the mint, got %s", pos.Amount)
	}
	if got := e.Pools.GetTotalSupply(reply.LPTokenID); got.Cmp(want) != 0 {
		t.Fatalf("expected total supply to equal the mint, got %s", got)
	}
}

func TestAddPoolRejectsDuplicatePair(t *testing.T) {
	e, a, b := newAddPoolEngine(t)
	amt := mustAmt(t, "1000")
	req := &AddRequest{UserID: "alice", Token0Sym: a.Symbol, Amount0: amt, Token1Sym: b.Symbol, Amount1: amt}
	if _, err := e.AddPool(context.Background(), req); err != nil {
		t.Fatalf("first AddPool: %v", err)
	}
	if _, err := e.AddPool(context.Background(), req); err == nil {
		t.Fatal("expected second add_pool for the same pair to be rejected")
	}
}

func TestAddPoolRejectsKongFeeAboveLPFee(t *testing.T) {
	e, a, b := newAddPoolEngine(t)
	amt := mustAmt(t, "1000")
	kongFee := uint8(50)
	lpFee := uint8(30)
	req := &AddRequest{
		UserID: "alice", Token0Sym: a.Symbol, Amount0: amt, Token1Sym: b.Symbol, Amount1: amt,
		LPFeeBps: &lpFee, KongFeeBps: &kongFee,
	}
	if _, err := e.AddPool(context.Background(), req); err == nil {
		t.Fatal("expected kong_fee_bps > lp_fee_bps to be rejected")
	}
}

func TestAddPoolRejectsExcessiveLPFee(t *testing.T) {
	e, a, b := newAddPoolEngine(t)
	amt := mustAmt(t, "1000")
	lpFee := uint8(255)
	req := &AddRequest{UserID: "alice", Token0Sym: a.Symbol, Amount0: amt, Token1Sym: b.Symbol, Amount1: amt, LPFeeBps: &lpFee}
	if _, err := e.AddPool(context.Background(), req); err == nil {
		t.Fatal("expected lp_fee_bps above 1000 to be rejected")
	}
}

func TestAddPoolRejectsZeroAmounts(t *testing.T) {
	e, a, b := newAddPoolEngine(t)
	req := &AddRequest{UserID: "alice", Token0Sym: a.Symbol, Amount0: bignat.Zero(), Token1Sym: b.Symbol, Amount1: mustAmt(t, "1000")}
	if _, err := e.AddPool(context.Background(), req); err == nil {
		t.Fatal("expected zero amount_0 to be rejected")
	}
}

// TestAddPoolMixedDecimalsRescales exercises decimal rescaling (spec.md
// §4.1) across two tokens with different decimals places.
func TestAddPoolMixedDecimalsRescales(t *testing.T) {
	tokStore := tokens.NewStore()
	poolStore := NewStore()
	a, _ := tokStore.Insert(&tokens.Token{Chain: tokens.ChainIC, Symbol: "A", Address: "a", Decimals: 8, Fee: bignat.Zero()})
	c, _ := tokStore.Insert(&tokens.Token{Chain: tokens.ChainIC, Symbol: "C", Address: "c", Decimals: 6, Fee: bignat.Zero()})
	j := journal.New()
	var tick uint64
	now := func() uint64 { tick++; return tick }
	e := NewEngine(poolStore, tokStore, &fakeLedger{}, j, identity.NewRegistry(false), now, 30, 0)

	req := &AddRequest{
		UserID:    "bob",
		Token0Sym: a.Symbol,
		Amount0:   mustAmt(t, "100000000"), // 1 unit at 8dp
		Token1Sym: c.Symbol,
		Amount1:   mustAmt(t, "1000000"), // 1 unit at 6dp
	}
	reply, err := e.AddPool(context.Background(), req)
	if err != nil {
		t.Fatalf("AddPool: %v", err)
	}
	want := mustAmt(t, "100000000") // sqrt(1*10^8 * 1*10^8) at the shared 8dp scale
	if reply.LPAmount.Cmp(want) != 0 {
		t.Fatalf("expected LP mint %s, got %s", want, reply.LPAmount)
	}
}

// TestAddPoolRefundsFirstLegOnSecondLegFailure verifies spec.md §4.4's
// refund-then-claim fallback when the second leg's pull fails after the
// first leg already succeeded.
func TestAddPoolRefundsFirstLegOnSecondLegFailure(t *testing.T) {
	tokStore := tokens.NewStore()
	poolStore := NewStore()
	a, _ := tokStore.Insert(&tokens.Token{Chain: tokens.ChainIC, Symbol: "A", Address: "a", Decimals: 8, Fee: bignat.Zero()})
	b, _ := tokStore.Insert(&tokens.Token{Chain: tokens.ChainIC, Symbol: "B", Address: "b", Decimals: 8, Fee: bignat.Zero()})
	j := journal.New()
	var tick uint64
	now := func() uint64 { tick++; return tick }

	ledger := &fakeLedger{transferFromFailOnToken: b.ID}
	e := NewEngine(poolStore, tokStore, ledger, j, identity.NewRegistry(false), now, 30, 0)

	amt := mustAmt(t, "1000")
	req := &AddRequest{UserID: "bob", Token0Sym: a.Symbol, Amount0: amt, Token1Sym: b.Symbol, Amount1: amt}
	reply, err := e.AddPool(context.Background(), req)
	if err == nil {
		t.Fatal("expected second-leg failure to surface as an error")
	}
	if reply.Status != journal.StatusFailed {
		t.Fatalf("expected failed status, got %s", reply.Status)
	}
	if _, exists := e.Pools.GetByTokenIDs(a.ID, b.ID); exists {
		t.Fatal("pool should not have been registered after a failed add_pool")
	}
	if ledger.transfers != 1 || len(reply.ClaimIDs) != 0 {
		t.Fatalf("expected the first leg refunded by one transfer with no claim, got %d transfers, claims %v", ledger.transfers, reply.ClaimIDs)
	}
}
