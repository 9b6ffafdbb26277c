package swap

import (
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
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

func TestComputeHopDirectOutputBelowMidPrice(t *testing.T) {
	payTok := &tokens.Token{ID: 1, Symbol: "ICP", Decimals: 8}
	recvTok := &tokens.Token{ID: 2, Symbol: "ckUSDT", Decimals: 6}
	p := &pool.Pool{
		PoolID:   1,
		Token0ID: 1,
		Token1ID: 2,
		Balance0: mustAmt(t, "100000000000"), // 1000 ICP @ 8dp
		Balance1: mustAmt(t, "8000000000"),   // 8000 ckUSDT @ 6dp
		LPFee0:   bignat.Zero(),
		LPFee1:   bignat.Zero(),
		LPFeeBps: 30,
	}

	hop, err := computeHop(p, payTok, recvTok, mustAmt(t, "1000000000"), p.LPFeeBps, bignat.Zero(), User{})
	if err != nil {
		t.Fatalf("computeHop: %v", err)
	}
	if hop.NetOut.IsZero() {
		t.Fatalf("expected nonzero output, got zero: %s", spew.Sdump(hop))
	}
	// constant product: output must be strictly less than the mid-price
	// implied amount (slippage always costs the trader something).
	if hop.Price >= hop.MidPrice {
		t.Fatalf("execution price %v should be below mid price %v", hop.Price, hop.MidPrice)
	}
	if hop.NetOut.Cmp(hop.AmountOut) > 0 {
		t.Fatalf("net out %s must not exceed gross out %s", hop.NetOut, hop.AmountOut)
	}
}

func TestComputeHopFeeLevelDiscountReducesLPFee(t *testing.T) {
	payTok := &tokens.Token{ID: 1, Symbol: "ICP", Decimals: 8}
	recvTok := &tokens.Token{ID: 2, Symbol: "ckUSDT", Decimals: 6}
	newPool := func() *pool.Pool {
		return &pool.Pool{
			PoolID:   1,
			Token0ID: 1,
			Token1ID: 2,
			Balance0: mustAmt(t, "100000000000"),
			Balance1: mustAmt(t, "8000000000"),
			LPFee0:   bignat.Zero(),
			LPFee1:   bignat.Zero(),
			LPFeeBps: 30,
		}
	}

	full, err := computeHop(newPool(), payTok, recvTok, mustAmt(t, "1000000000"), 30, bignat.Zero(), User{FeeLevel: 0})
	if err != nil {
		t.Fatalf("computeHop (full fee): %v", err)
	}
	discounted, err := computeHop(newPool(), payTok, recvTok, mustAmt(t, "1000000000"), 30, bignat.Zero(), User{FeeLevel: 100})
	if err != nil {
		t.Fatalf("computeHop (100%% discount): %v", err)
	}
	if discounted.LPFeeOut.Cmp(full.LPFeeOut) >= 0 {
		t.Fatalf("fully discounted LP fee %s should be strictly below full LP fee %s", discounted.LPFeeOut, full.LPFeeOut)
	}
	if !discounted.LPFeeOut.IsZero() {
		t.Fatalf("fee_level=100 should zero the LP fee, got %s", discounted.LPFeeOut)
	}
}

func TestComputeHopRejectsEmptyPool(t *testing.T) {
	payTok := &tokens.Token{ID: 1, Symbol: "ICP", Decimals: 8}
	recvTok := &tokens.Token{ID: 2, Symbol: "ckUSDT", Decimals: 6}
	p := &pool.Pool{
		PoolID:   1,
		Token0ID: 1,
		Token1ID: 2,
		Balance0: bignat.Zero(),
		Balance1: bignat.Zero(),
		LPFee0:   bignat.Zero(),
		LPFee1:   bignat.Zero(),
		LPFeeBps: 30,
	}
	if _, err := computeHop(p, payTok, recvTok, mustAmt(t, "1"), 30, bignat.Zero(), User{}); err == nil {
		t.Fatal("expected error pricing against an empty pool")
	}
}

func TestComputeHopDecimalRescaling(t *testing.T) {
	// payToken has fewer decimals than recvToken: max_dp must be the larger,
	// and the final output must be expressed back in recvToken's decimals.
	payTok := &tokens.Token{ID: 1, Symbol: "BTC", Decimals: 8}
	recvTok := &tokens.Token{ID: 2, Symbol: "ETH", Decimals: 18}
	p := &pool.Pool{
		PoolID:   1,
		Token0ID: 1,
		Token1ID: 2,
		Balance0: mustAmt(t, "1000000000"),                  // 10 BTC
		Balance1: mustAmt(t, "150000000000000000000"),       // 150 ETH
		LPFee0:   bignat.Zero(),
		LPFee1:   bignat.Zero(),
		LPFeeBps: 30,
	}
	hop, err := computeHop(p, payTok, recvTok, mustAmt(t, "100000000"), p.LPFeeBps, bignat.Zero(), User{})
	if err != nil {
		t.Fatalf("computeHop: %v", err)
	}
	if hop.NetOut.IsZero() {
		t.Fatalf("expected nonzero ETH out")
	}
}
