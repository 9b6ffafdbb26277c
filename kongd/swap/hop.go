// Package swap implements the multi-hop routing and per-hop constant-product
// pricing of spec.md §4.3. Grounded on the teacher's mining.NewBlockTemplate
// style of threading an immutable snapshot through a pure computation
// (g.dag.RLock(); ...; defer g.dag.RUnlock()) — here each hop reads a cloned
// Pool snapshot and returns a pure result, leaving mutation to the caller so
// the caller can re-read state across await points per spec.md §5.
package swap

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
	"github.com/KongSwap/kong-sub000/kongd/pool"
	"github.com/KongSwap/kong-sub000/kongd/tokens"
)

// HopResult is the outcome of pricing a single swap leg.
type HopResult struct {
	Pool          *pool.Pool
	PayTokenID    uint32
	ReceiveTokenID uint32
	AmountIn      *bignat.BigNat // in pay token's native decimals
	AmountOut     *bignat.BigNat // gross, in receive token's native decimals, before lp fee/gas
	LPFeeOut      *bignat.BigNat // in receive token's native decimals
	GasFee        *bignat.BigNat // in receive token's native decimals
	NetOut        *bignat.BigNat // AmountOut - LPFeeOut - GasFee
	Price         float64
	MidPrice      float64
}

// User wraps the fee-level discount input of spec.md §4.3.
type User struct {
	FeeLevel uint8
}

// computeHop prices one hop of amountIn of payToken against p, where payToken
// is one of p.Token0ID/p.Token1ID. hopLPBps is the (possibly halved/thirded)
// LP fee in bps to charge for this hop, and gasFee is the token-standard fee
// to subtract from delivered output (zero for intermediate hops).
func computeHop(p *pool.Pool, payTok, recvTok *tokens.Token, amountIn *bignat.BigNat, hopLPBps uint8, gasFee *bignat.BigNat, user User) (*HopResult, error) {
	payIsToken0 := payTok.ID == p.Token0ID
	var ra, rb *bignat.BigNat
	var decA, decB uint8
	if payIsToken0 {
		ra, rb = p.Reserve0(), p.Reserve1()
		decA, decB = payTok.Decimals, recvTok.Decimals
	} else {
		ra, rb = p.Reserve1(), p.Reserve0()
		decA, decB = payTok.Decimals, recvTok.Decimals
	}

	if ra.IsZero() || rb.IsZero() {
		return nil, errors.Errorf("pool %d has no liquidity", p.PoolID)
	}

	maxDP := decA
	if decB > maxDP {
		maxDP = decB
	}

	amountInMaxDP := amountIn.ToDecimalPrecision(decA, maxDP)
	raMaxDP := ra.ToDecimalPrecision(decA, maxDP)
	rbMaxDP := rb.ToDecimalPrecision(decB, maxDP)

	// amount_out_max_dp = (amount_in * Rb) / (Ra + amount_in)
	numerator := amountInMaxDP.Multiply(rbMaxDP)
	denominator := raMaxDP.Add(amountInMaxDP)
	amountOutMaxDP := numerator.Divide(denominator)
	if amountOutMaxDP == nil {
		return nil, errors.Errorf("pool %d: division by zero computing swap output", p.PoolID)
	}

	userLPPct := clampInt(100-int(user.FeeLevel), 0, 100)
	effectiveBps := (userLPPct * int(hopLPBps)) / 100

	lpFeeOutMaxDP := amountOutMaxDP.Multiply(bignat.FromUint64(uint64(effectiveBps))).Divide(bignat.FromUint64(10000))
	if lpFeeOutMaxDP == nil {
		lpFeeOutMaxDP = bignat.Zero()
	}

	amountOut := amountOutMaxDP.ToDecimalPrecision(maxDP, decB)
	lpFeeOut := lpFeeOutMaxDP.ToDecimalPrecision(maxDP, decB)

	netOut := amountOut.Subtract(lpFeeOut).Subtract(gasFee)
	if netOut.Cmp(rb) > 0 {
		return nil, errors.Errorf("pool %d: insufficient liquidity to deliver %s", p.PoolID, netOut)
	}

	price := ratioToFloat(rbMaxDP, raMaxDP)
	var execPrice float64
	if !amountInMaxDP.IsZero() {
		execPrice = ratioToFloat(amountOutMaxDP, amountInMaxDP)
	} else {
		execPrice = price
	}

	return &HopResult{
		Pool:           p,
		PayTokenID:     payTok.ID,
		ReceiveTokenID: recvTok.ID,
		AmountIn:       amountIn,
		AmountOut:      amountOut,
		LPFeeOut:       lpFeeOut,
		GasFee:         gasFee,
		NetOut:         netOut,
		Price:          execPrice,
		MidPrice:       price,
	}, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ratioToFloat computes a/b as a float64, used only for the display-facing
// price/mid_price/slippage fields (spec.md §9: "only price, mid_price,
// slippage... are f64; all value-bearing math is BigNat").
func ratioToFloat(a, b *bignat.BigNat) float64 {
	if b.IsZero() {
		return 0
	}
	af := bigNatToFloat(a)
	bf := bigNatToFloat(b)
	if bf == 0 {
		return 0
	}
	return af / bf
}

func bigNatToFloat(b *bignat.BigNat) float64 {
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return f
}
