package swap

import (
	"math"

	"github.com/pkg/errors"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
	"github.com/KongSwap/kong-sub000/kongd/logger"
	"github.com/KongSwap/kong-sub000/kongd/pool"
	"github.com/KongSwap/kong-sub000/kongd/tokens"
)

var log = logger.Get(logger.SubsystemTags.SWAP)

// Route is a priced, ordered sequence of hops from pay token to receive
// token, per spec.md §4.3.
type Route struct {
	Hops            []*HopResult
	ReceiveAmount   *bignat.BigNat
	Price           float64
	MidPrice        float64
	SlippagePercent float64
}

// Engine prices routes over a pool store and token store. It never mutates
// state; callers apply a Route's hops to the pool store themselves after
// slippage/min-receive checks pass (spec.md §4.3 "Execution").
type Engine struct {
	Pools  *pool.Store
	Tokens *tokens.Store
	// HubSymbols lists the intermediate hub token symbols tried for 2/3-hop
	// routing, in priority order (spec.md §4.3: "hub H in {ckUSDT, ICP}").
	HubSymbols []string
}

// NewEngine constructs a routing engine over the given stores.
func NewEngine(pools *pool.Store, toks *tokens.Store, hubSymbols []string) *Engine {
	return &Engine{Pools: pools, Tokens: toks, HubSymbols: hubSymbols}
}

// FindRoute selects and prices a route for (payToken, payAmount, receiveToken)
// following the priority order of spec.md §4.3: direct, 2-hop via a hub,
// ckUSDT<->ICP bridge, 3-hop triangle.
func (e *Engine) FindRoute(payTok, recvTok *tokens.Token, payAmount *bignat.BigNat, user User) (*Route, error) {
	if payAmount.IsZero() {
		return nil, errors.New("invalid zero amounts")
	}

	if r, err := e.tryDirect(payTok, recvTok, payAmount, user); err == nil {
		return r, nil
	}

	var best *Route
	for _, hubSym := range e.HubSymbols {
		hub, ok := e.Tokens.GetBySymbol(tokens.ChainIC, hubSym)
		if !ok || hub.ID == payTok.ID || hub.ID == recvTok.ID {
			continue
		}
		r, err := e.tryTwoHop(payTok, hub, recvTok, payAmount, user)
		if err != nil {
			continue
		}
		if best == nil || r.ReceiveAmount.Cmp(best.ReceiveAmount) > 0 {
			best = r
		}
	}
	if best != nil {
		return best, nil
	}

	if r, err := e.tryBridge(payTok, recvTok, payAmount, user); err == nil {
		return r, nil
	}

	if r, err := e.tryThreeHop(payTok, recvTok, payAmount, user); err == nil {
		return r, nil
	}

	return nil, errors.Errorf("no route found from %s to %s", payTok.Symbol, recvTok.Symbol)
}

func (e *Engine) tryDirect(payTok, recvTok *tokens.Token, amount *bignat.BigNat, user User) (*Route, error) {
	p, ok := e.Pools.GetByTokenIDs(payTok.ID, recvTok.ID)
	if !ok {
		return nil, errors.New("pool not found")
	}
	gas := recvTok.Fee
	hop, err := computeHop(p, payTok, recvTok, amount, p.LPFeeBps, gas, user)
	if err != nil {
		return nil, err
	}
	return assembleRoute([]*HopResult{hop}), nil
}

func (e *Engine) tryTwoHop(payTok, hub, recvTok *tokens.Token, amount *bignat.BigNat, user User) (*Route, error) {
	p1, ok := e.Pools.GetByTokenIDs(payTok.ID, hub.ID)
	if !ok {
		return nil, errors.New("pool not found")
	}
	p2, ok := e.Pools.GetByTokenIDs(hub.ID, recvTok.ID)
	if !ok {
		return nil, errors.New("pool not found")
	}
	hopBps := ceilDiv(p1.LPFeeBps, 2)
	hop1, err := computeHop(p1, payTok, hub, amount, hopBps, bignat.Zero(), user)
	if err != nil {
		return nil, err
	}
	hopBps2 := ceilDiv(p2.LPFeeBps, 2)
	hop2, err := computeHop(p2, hub, recvTok, hop1.NetOut, hopBps2, recvTok.Fee, user)
	if err != nil {
		return nil, err
	}
	return assembleRoute([]*HopResult{hop1, hop2}), nil
}

// tryBridge handles the special ckUSDT<->ICP 2-hop bridge of spec.md §4.3
// item 3, used when pay=ckUSDT and only a token/ICP pool exists (or the
// symmetric case on the receive side).
func (e *Engine) tryBridge(payTok, recvTok *tokens.Token, amount *bignat.BigNat, user User) (*Route, error) {
	if len(e.HubSymbols) < 2 {
		return nil, errors.New("no bridge hubs configured")
	}
	hub1, ok1 := e.Tokens.GetBySymbol(tokens.ChainIC, e.HubSymbols[0])
	hub2, ok2 := e.Tokens.GetBySymbol(tokens.ChainIC, e.HubSymbols[1])
	if !ok1 || !ok2 {
		return nil, errors.New("bridge hubs not registered")
	}
	if payTok.ID == hub1.ID && recvTok.ID != hub2.ID {
		return e.tryTwoHop(payTok, hub2, recvTok, amount, user)
	}
	if recvTok.ID == hub1.ID && payTok.ID != hub2.ID {
		return e.tryTwoHop(payTok, hub2, recvTok, amount, user)
	}
	return nil, errors.New("no bridge route applicable")
}

func (e *Engine) tryThreeHop(payTok, recvTok *tokens.Token, amount *bignat.BigNat, user User) (*Route, error) {
	if len(e.HubSymbols) < 2 {
		return nil, errors.New("no triangle hubs configured")
	}
	hub1, ok1 := e.Tokens.GetBySymbol(tokens.ChainIC, e.HubSymbols[0])
	hub2, ok2 := e.Tokens.GetBySymbol(tokens.ChainIC, e.HubSymbols[1])
	if !ok1 || !ok2 {
		return nil, errors.New("triangle hubs not registered")
	}

	tryTriangle := func(h1, h2 *tokens.Token) (*Route, error) {
		p1, ok := e.Pools.GetByTokenIDs(payTok.ID, h1.ID)
		if !ok {
			return nil, errors.New("pool not found")
		}
		p2, ok := e.Pools.GetByTokenIDs(h1.ID, h2.ID)
		if !ok {
			return nil, errors.New("pool not found")
		}
		p3, ok := e.Pools.GetByTokenIDs(h2.ID, recvTok.ID)
		if !ok {
			return nil, errors.New("pool not found")
		}
		bps1 := ceilDiv(p1.LPFeeBps, 3)
		hop1, err := computeHop(p1, payTok, h1, amount, bps1, bignat.Zero(), user)
		if err != nil {
			return nil, err
		}
		bps2 := ceilDiv(p2.LPFeeBps, 3)
		hop2, err := computeHop(p2, h1, h2, hop1.NetOut, bps2, bignat.Zero(), user)
		if err != nil {
			return nil, err
		}
		bps3 := ceilDiv(p3.LPFeeBps, 3)
		hop3, err := computeHop(p3, h2, recvTok, hop2.NetOut, bps3, recvTok.Fee, user)
		if err != nil {
			return nil, err
		}
		return assembleRoute([]*HopResult{hop1, hop2, hop3}), nil
	}

	if r, err := tryTriangle(hub1, hub2); err == nil {
		return r, nil
	}
	return tryTriangle(hub2, hub1)
}

// ceilDiv computes ceil(bps/divisor) for small positive integers.
func ceilDiv(bps uint8, divisor uint8) uint8 {
	return uint8((int(bps) + int(divisor) - 1) / int(divisor))
}

func assembleRoute(hops []*HopResult) *Route {
	price := 1.0
	midPrice := 1.0
	for _, h := range hops {
		price *= h.Price
		midPrice *= h.MidPrice
	}
	slippage := 0.0
	if midPrice > 0 && price < midPrice {
		slippage = round2(100 * math.Abs(price/midPrice-1))
	}
	last := hops[len(hops)-1]
	log.Debugf("priced %d-hop route: receive=%s price=%.6f mid_price=%.6f slippage=%.2f%%",
		len(hops), last.NetOut, price, midPrice, slippage)
	return &Route{
		Hops:            hops,
		ReceiveAmount:   last.NetOut,
		Price:           price,
		MidPrice:        midPrice,
		SlippagePercent: slippage,
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
