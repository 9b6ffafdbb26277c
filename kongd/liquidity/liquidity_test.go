package liquidity

import (
	"context"
	"testing"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
	"github.com/KongSwap/kong-sub000/kongd/identity"
	"github.com/KongSwap/kong-sub000/kongd/journal"
	"github.com/KongSwap/kong-sub000/kongd/ledgerclient"
	"github.com/KongSwap/kong-sub000/kongd/pool"
	"github.com/KongSwap/kong-sub000/kongd/tokens"
)

func mustAmt(t *testing.T, s string) *bignat.BigNat {
	t.Helper()
	n, err := bignat.FromString(s)
	if err != nil {
		t.Fatalf("bignat.FromString(%q): %v", s, err)
	}
	return n
}

type stubLedger struct {
	transferErr func(tokenID uint32) error
}

func (s *stubLedger) Transfer(ctx context.Context, tokenID uint32, amount *bignat.BigNat, to ledgerclient.Account, fee *bignat.BigNat, memo []byte, createdAtTimeNs *uint64) (*bignat.BigNat, error) {
	if s.transferErr != nil {
		if err := s.transferErr(tokenID); err != nil {
			return nil, err
		}
	}
	return bignat.FromUint64(1), nil
}
func (s *stubLedger) TransferFrom(ctx context.Context, tokenID uint32, owner, to ledgerclient.Account, amount *bignat.BigNat) (*bignat.BigNat, error) {
	return bignat.FromUint64(1), nil
}
func (s *stubLedger) BalanceOf(ctx context.Context, tokenID uint32, account ledgerclient.Account) (*bignat.BigNat, error) {
	return bignat.Zero(), nil
}
func (s *stubLedger) Allowance(ctx context.Context, tokenID uint32, owner, spender ledgerclient.Account) (*ledgerclient.Allowance, error) {
	return &ledgerclient.Allowance{Amount: bignat.Zero()}, nil
}
func (s *stubLedger) GetBlocks(ctx context.Context, tokenID uint32, start, length uint64) (*ledgerclient.BlockRange, error) {
	return &ledgerclient.BlockRange{}, nil
}
func (s *stubLedger) VerifyTransfer(ctx context.Context, tokenID uint32, txID ledgerclient.TxID, expectAmount *bignat.BigNat, expectTo ledgerclient.Account, expiresAtNs uint64) error {
	return nil
}

func setup(t *testing.T) (*Engine, *tokens.Token, *tokens.Token, *pool.Pool) {
	t.Helper()
	tokStore := tokens.NewStore()
	poolStore := pool.NewStore()

	a, err := tokStore.Insert(&tokens.Token{Chain: tokens.ChainIC, Symbol: "A", Decimals: 8, Fee: bignat.Zero()})
	if err != nil {
		t.Fatal(err)
	}
	b, err := tokStore.Insert(&tokens.Token{Chain: tokens.ChainIC, Symbol: "B", Decimals: 8, Fee: bignat.Zero()})
	if err != nil {
		t.Fatal(err)
	}
	lp, err := tokStore.NewLPToken("A_B")
	if err != nil {
		t.Fatal(err)
	}

	t0, t1 := a, b
	if t0.ID > t1.ID {
		t0, t1 = t1, t0
	}
	p, err := poolStore.Insert(&pool.Pool{
		Token0ID:  t0.ID,
		Token1ID:  t1.ID,
		Balance0:  bignat.Zero(),
		Balance1:  bignat.Zero(),
		LPFee0:    bignat.Zero(),
		LPFee1:    bignat.Zero(),
		LPFeeBps:  30,
		LPTokenID: lp.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	j := journal.New()
	var tick uint64
	now := func() uint64 { tick++; return tick }
	engine := NewEngine(poolStore, tokStore, &stubLedger{}, j, identity.NewRegistry(false), now)
	return engine, a, b, p
}

func TestAddLiquidityInitialMintIsSqrt(t *testing.T) {
	engine, a, b, _ := setup(t)
	reply, err := engine.Add(context.Background(), &AddRequest{
		UserID:    "alice",
		Principal: "alice",
		Token0Sym: a.Symbol,
		Amount0:   mustAmt(t, "1000000000000"), // 10_000 * 10^8
		Token1Sym: b.Symbol,
		Amount1:   mustAmt(t, "1000000000000"),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	want := mustAmt(t, "1000000000000")
	if reply.LPAmount.Cmp(want) != 0 {
		t.Fatalf("expected sqrt(10000e8 * 10000e8) = 10000e8 LP minted, got %s", reply.LPAmount)
	}
}

func TestAddLiquidityRejectsBadRatio(t *testing.T) {
	engine, a, b, _ := setup(t)
	if _, err := engine.Add(context.Background(), &AddRequest{
		UserID:    "alice",
		Principal: "alice",
		Token0Sym: a.Symbol,
		Amount0:   mustAmt(t, "1000000000000"),
		Token1Sym: b.Symbol,
		Amount1:   mustAmt(t, "1000000000000"),
	}); err != nil {
		t.Fatalf("initial Add: %v", err)
	}

	// 2nd deposit at a wildly different ratio than the 1:1 pool should be
	// rejected rather than silently accepted at a made-up price.
	_, err := engine.Add(context.Background(), &AddRequest{
		UserID:    "bob",
		Principal: "bob",
		Token0Sym: a.Symbol,
		Amount0:   mustAmt(t, "100000000"),
		Token1Sym: b.Symbol,
		Amount1:   mustAmt(t, "1"),
	})
	if err == nil {
		t.Fatal("expected Incorrect ratio rejection")
	}
}

func TestRemoveLiquidityProRata(t *testing.T) {
	engine, a, b, p := setup(t)
	if _, err := engine.Add(context.Background(), &AddRequest{
		UserID:    "alice",
		Principal: "alice",
		Token0Sym: a.Symbol,
		Amount0:   mustAmt(t, "1000000000000"),
		Token1Sym: b.Symbol,
		Amount1:   mustAmt(t, "1000000000000"),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	pos := engine.Pools.GetLPPosition("alice", p.LPTokenID)
	half := pos.Amount.Divide(bignat.FromUint64(2))

	reply, err := engine.Remove(context.Background(), &RemoveRequest{
		UserID:          "alice",
		Principal:       "alice",
		Token0Sym:       a.Symbol,
		Token1Sym:       b.Symbol,
		RemoveLPAmount:  half,
		ReceiveAccount0: ledgerclient.Account{Owner: "alice"},
		ReceiveAccount1: ledgerclient.Account{Owner: "alice"},
	})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if reply.Amount0.IsZero() || reply.Amount1.IsZero() {
		t.Fatalf("expected nonzero payouts on both sides, got %s / %s", reply.Amount0, reply.Amount1)
	}

	remaining := engine.Pools.GetLPPosition("alice", p.LPTokenID)
	if remaining.Amount.Cmp(half) != 0 {
		t.Fatalf("expected half the LP position left, got %s vs %s removed", remaining.Amount, half)
	}
}

func TestRemoveLiquidityRejectsInsufficientPosition(t *testing.T) {
	engine, a, b, _ := setup(t)
	_, err := engine.Remove(context.Background(), &RemoveRequest{
		UserID:          "alice",
		Principal:       "alice",
		Token0Sym:       a.Symbol,
		Token1Sym:       b.Symbol,
		RemoveLPAmount:  mustAmt(t, "1"),
		ReceiveAccount0: ledgerclient.Account{Owner: "alice"},
		ReceiveAccount1: ledgerclient.Account{Owner: "alice"},
	})
	if err == nil {
		t.Fatal("expected rejection for a user with no LP position")
	}
}
