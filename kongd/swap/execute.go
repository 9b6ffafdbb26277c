package swap

import (
	"context"

	"github.com/pkg/errors"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
	"github.com/KongSwap/kong-sub000/kongd/identity"
	"github.com/KongSwap/kong-sub000/kongd/journal"
	"github.com/KongSwap/kong-sub000/kongd/ledgerclient"
	"github.com/KongSwap/kong-sub000/kongd/tokens"
)

// Request is the external swap request shape of spec.md §6. Principal is
// the host-chain identity presented alongside UserID; the two are
// reconciled via identity.Registry before UserID is trusted for crediting
// or journaling (spec.md §9).
type Request struct {
	UserID            string
	Principal         string
	PayTokenSymbol    string
	PayAmount         *bignat.BigNat
	PayTxID           *ledgerclient.TxID
	ReceiveTokenSymbol string
	MinReceiveAmount  *bignat.BigNat
	ReceiveAccount    ledgerclient.Account
	MaxSlippage       *float64
	User              User
}

// HopTx describes one executed hop for the reply's txs list.
type HopTx struct {
	PoolID        uint32
	PayTokenID    uint32
	ReceiveTokenID uint32
	PayAmount     *bignat.BigNat
	ReceiveAmount *bignat.BigNat
	LPFee         *bignat.BigNat
	GasFee        *bignat.BigNat
	Price         float64
}

// Reply is the external swap reply shape of spec.md §6.
type Reply struct {
	RequestID       uint64
	Status          journal.StatusCode
	PaySymbol       string
	PayAmount       *bignat.BigNat
	ReceiveSymbol   string
	ReceiveAmount   *bignat.BigNat
	MidPrice        float64
	Price           float64
	SlippagePercent float64
	Txs             []HopTx
	TransferIDs     []uint64
	ClaimIDs        []uint64
}

// Executor performs a swap end to end: receive the pay token, atomically
// mutate the route's pools, and deliver the receive token, per spec.md §4.3
// "Execution". Pool state is read (FindRoute) only after the pay-token
// ledger call returns and is mutated (applyRoute) with no ledger call in
// between, per spec.md §5.
type Executor struct {
	Engine   *Engine
	Ledger   ledgerclient.Client
	Journal  *journal.Journal
	Identity *identity.Registry
	Now      func() uint64 // ns, injected so tests don't depend on wall clock
}

// NewExecutor builds a swap executor over the given routing engine.
func NewExecutor(engine *Engine, ledger ledgerclient.Client, j *journal.Journal, ident *identity.Registry, now func() uint64) *Executor {
	return &Executor{Engine: engine, Ledger: ledger, Journal: j, Identity: ident, Now: now}
}

// Swap executes req synchronously, returning the terminal reply or an error
// for validation failures that made no state change.
func (ex *Executor) Swap(ctx context.Context, req *Request) (*Reply, error) {
	if req.PayAmount.IsZero() {
		return nil, errors.New("invalid zero amounts")
	}
	payTok, ok := ex.Engine.Tokens.GetBySymbol(tokens.ChainIC, req.PayTokenSymbol)
	if !ok {
		return nil, errors.Errorf("unknown token %s", req.PayTokenSymbol)
	}
	recvTok, ok := ex.Engine.Tokens.GetBySymbol(tokens.ChainIC, req.ReceiveTokenSymbol)
	if !ok {
		return nil, errors.Errorf("unknown token %s", req.ReceiveTokenSymbol)
	}

	userID, err := ex.Identity.Resolve(req.Principal, req.UserID)
	if err != nil {
		return nil, err
	}
	req.UserID = userID

	entry := ex.Journal.NewRequest(req.UserID, journal.KindSwap, req, ex.Now())

	// §4.3 Execution (a): receive the pay token, either by verifying a prior
	// direct transfer against tx_id, or by pulling via transfer_from.
	ex.Journal.AppendStatus(entry.RequestID, journal.StatusSendToken0)
	if req.PayTxID != nil {
		if ex.Journal.IsTransferSeen(payTok.ID, *req.PayTxID) {
			ex.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
			return ex.fail(entry, req, "duplicate transfer tx_id")
		}
		if err := ex.Ledger.VerifyTransfer(ctx, payTok.ID, *req.PayTxID, req.PayAmount, ledgerclient.Account{Owner: "kong"}, 0); err != nil {
			ex.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
			return ex.fail(entry, req, err.Error())
		}
		if _, err := ex.Journal.RecordTransfer(entry.RequestID, false, payTok.ID, req.PayAmount, *req.PayTxID, ex.Now()); err != nil {
			ex.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
			return ex.fail(entry, req, err.Error())
		}
	} else {
		owner := ledgerclient.Account{Owner: req.UserID}
		if _, err := ex.Ledger.TransferFrom(ctx, payTok.ID, owner, ledgerclient.Account{Owner: "kong"}, req.PayAmount); err != nil {
			ex.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
			return ex.fail(entry, req, err.Error())
		}
	}
	ex.Journal.AppendStatus(entry.RequestID, journal.StatusSendToken0Success)

	// Price the route against current reserves (re-read after the await
	// above, per spec.md §5 reentrancy discipline).
	route, err := ex.Engine.FindRoute(payTok, recvTok, req.PayAmount, req.User)
	if err != nil {
		ex.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
		return ex.fail(entry, req, err.Error())
	}

	if req.MaxSlippage != nil && route.SlippagePercent > *req.MaxSlippage {
		ex.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
		return ex.fail(entry, req, "slippage_exceeded")
	}
	if req.MinReceiveAmount != nil && route.ReceiveAmount.Cmp(req.MinReceiveAmount) < 0 {
		ex.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
		return ex.fail(entry, req, "receive amount below minimum")
	}

	// (c) mutate each pool on the route atomically — no await between reads
	// and writes here.
	if err := ex.applyRoute(route); err != nil {
		ex.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
		return ex.fail(entry, req, err.Error())
	}

	// (d) push delivered tokens to the receiver; on failure, write a Claim
	// instead of losing the funds (spec.md §7).
	var claimIDs []uint64
	_, err = ex.Ledger.Transfer(ctx, recvTok.ID, route.ReceiveAmount, req.ReceiveAccount, recvTok.Fee, nil, nil)
	if err != nil {
		claim := ex.Journal.WriteClaim(req.UserID, recvTok.ID, route.ReceiveAmount, "swap payout failed: "+err.Error(), ex.Now())
		claimIDs = append(claimIDs, claim.ClaimID)
	}

	ex.Journal.AppendStatus(entry.RequestID, journal.StatusSuccess)

	txs := make([]HopTx, 0, len(route.Hops))
	for _, h := range route.Hops {
		txs = append(txs, HopTx{
			PoolID:         h.Pool.PoolID,
			PayTokenID:     h.PayTokenID,
			ReceiveTokenID: h.ReceiveTokenID,
			PayAmount:      h.AmountIn,
			ReceiveAmount:  h.NetOut,
			LPFee:          h.LPFeeOut,
			GasFee:         h.GasFee,
			Price:          h.Price,
		})
	}

	reply := &Reply{
		RequestID:       entry.RequestID,
		Status:          journal.StatusSuccess,
		PaySymbol:       payTok.Symbol,
		PayAmount:       req.PayAmount,
		ReceiveSymbol:   recvTok.Symbol,
		ReceiveAmount:   route.ReceiveAmount,
		MidPrice:        route.MidPrice,
		Price:           route.Price,
		SlippagePercent: route.SlippagePercent,
		Txs:             txs,
		ClaimIDs:        claimIDs,
	}
	ex.Journal.SetReply(entry.RequestID, reply)
	return reply, nil
}

// applyRoute mutates every pool along the route: balance += pay,
// balance -= receive, lp_fee += lp_fee_share, per spec.md §4.3 (c).
func (ex *Executor) applyRoute(route *Route) error {
	for _, h := range route.Hops {
		p, ok := ex.Engine.Pools.GetByID(h.Pool.PoolID)
		if !ok {
			return errors.Errorf("pool %d vanished mid-route", h.Pool.PoolID)
		}
		cp := p.Clone()
		payIsToken0 := h.PayTokenID == cp.Token0ID
		if payIsToken0 {
			cp.Balance0 = cp.Balance0.Add(h.AmountIn)
			cp.Balance1 = cp.Balance1.Subtract(h.NetOut).Subtract(h.GasFee)
			cp.LPFee1 = cp.LPFee1.Add(h.LPFeeOut)
		} else {
			cp.Balance1 = cp.Balance1.Add(h.AmountIn)
			cp.Balance0 = cp.Balance0.Subtract(h.NetOut).Subtract(h.GasFee)
			cp.LPFee0 = cp.LPFee0.Add(h.LPFeeOut)
		}
		if err := ex.Engine.Pools.Update(cp); err != nil {
			return err
		}
	}
	return nil
}

func (ex *Executor) fail(entry *journal.Entry, req *Request, reason string) (*Reply, error) {
	reply := &Reply{
		RequestID: entry.RequestID,
		Status:    journal.StatusFailed,
		PaySymbol: req.PayTokenSymbol,
		PayAmount: req.PayAmount,
	}
	ex.Journal.SetReply(entry.RequestID, reply)
	return nil, errors.New(reason)
}
