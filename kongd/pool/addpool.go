package pool

import (
	"context"

	"github.com/pkg/errors"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
	"github.com/KongSwap/kong-sub000/kongd/identity"
	"github.com/KongSwap/kong-sub000/kongd/journal"
	"github.com/KongSwap/kong-sub000/kongd/ledgerclient"
	"github.com/KongSwap/kong-sub000/kongd/logger"
	"github.com/KongSwap/kong-sub000/kongd/tokens"
)

var log = logger.Get(logger.SubsystemTags.POOL)

const maxLPFeeBps = 1000

// AddRequest is the external add_pool request shape of spec.md §6:
// "{token_0, amount_0, tx_id_0?, token_1 in {ckUSDT, ICP}, amount_1,
// tx_id_1?, lp_fee_bps?}".
type AddRequest struct {
	UserID     string
	Principal  string
	Token0Sym  string
	Amount0    *bignat.BigNat
	TxID0      *ledgerclient.TxID
	Token1Sym  string
	Amount1    *bignat.BigNat
	TxID1      *ledgerclient.TxID
	LPFeeBps   *uint8 // defaults to Engine.DefaultLPFeeBps when nil
	KongFeeBps *uint8 // defaults to Engine.DefaultKongFeeBps when nil
}

// AddReply is the external add_pool reply shape, paralleling
// kongd/liquidity.AddReply with a pool_id and the LP mint amount.
type AddReply struct {
	RequestID uint64
	Status    journal.StatusCode
	PoolID    uint32
	LPTokenID uint32
	Amount0   *bignat.BigNat
	Amount1   *bignat.BigNat
	LPAmount  *bignat.BigNat
	ClaimIDs  []uint64
}

// Engine creates new pools: spec.md §4.5's "AddPool" operation, the one
// path that mints a pool's first LP tokens. Grounded on the same
// pull-both-legs-then-mutate discipline as kongd/liquidity.Engine.Add,
// since both engines share the pool store's reentrancy rules (spec.md §5).
type Engine struct {
	Pools             *Store
	Tokens            *tokens.Store
	Ledger            ledgerclient.Client
	Journal           *journal.Journal
	Identity          *identity.Registry
	Now               func() uint64
	DefaultLPFeeBps   uint8
	DefaultKongFeeBps uint8
}

// NewEngine constructs an add-pool engine over the given stores.
func NewEngine(pools *Store, toks *tokens.Store, ledger ledgerclient.Client, j *journal.Journal, ident *identity.Registry, now func() uint64, defaultLPFeeBps, defaultKongFeeBps uint8) *Engine {
	return &Engine{
		Pools:             pools,
		Tokens:            toks,
		Ledger:            ledger,
		Journal:           j,
		Identity:          ident,
		Now:               now,
		DefaultLPFeeBps:   defaultLPFeeBps,
		DefaultKongFeeBps: defaultKongFeeBps,
	}
}

// AddPool executes an add_pool request end to end per spec.md §4.5/§8
// scenario 3: pull both legs via the ledger client, validate the fee
// configuration, register the pool, and mint initial LP = sqrt(a0*a1)
// (decimal-normalized) to the caller.
func (e *Engine) AddPool(ctx context.Context, req *AddRequest) (*AddReply, error) {
	if req.Amount0.IsZero() || req.Amount1.IsZero() {
		return nil, errors.New("invalid zero amounts")
	}
	tok0, ok := e.Tokens.GetBySymbol(tokens.ChainIC, req.Token0Sym)
	if !ok {
		return nil, errors.Errorf("unknown token %s", req.Token0Sym)
	}
	tok1, ok := e.Tokens.GetBySymbol(tokens.ChainIC, req.Token1Sym)
	if !ok {
		return nil, errors.Errorf("unknown token %s", req.Token1Sym)
	}

	lpFeeBps := e.DefaultLPFeeBps
	if req.LPFeeBps != nil {
		lpFeeBps = *req.LPFeeBps
	}
	kongFeeBps := e.DefaultKongFeeBps
	if req.KongFeeBps != nil {
		kongFeeBps = *req.KongFeeBps
	}
	if lpFeeBps > maxLPFeeBps {
		return nil, errors.Errorf("lp_fee_bps %d exceeds maximum of %d", lpFeeBps, maxLPFeeBps)
	}
	if kongFeeBps > lpFeeBps {
		return nil, errors.Errorf("LP fee cannot be less than Kong fee of %d", kongFeeBps)
	}
	userID, err := e.Identity.Resolve(req.Principal, req.UserID)
	if err != nil {
		return nil, err
	}
	req.UserID = userID

	id0, id1, amt0, amt1, tx0, tx1 := tok0.ID, tok1.ID, req.Amount0, req.Amount1, req.TxID0, req.TxID1
	if id0 > id1 {
		id0, id1 = id1, id0
		tok0, tok1 = tok1, tok0
		amt0, amt1 = amt1, amt0
		tx0, tx1 = tx1, tx0
	}
	if _, exists := e.Pools.GetByTokenIDs(id0, id1); exists {
		return nil, errors.Errorf("pool already exists for tokens (%d, %d)", id0, id1)
	}

	entry := e.Journal.NewRequest(req.UserID, journal.KindAddPool, req, e.Now())

	e.Journal.AppendStatus(entry.RequestID, journal.StatusSendToken0)
	if err := e.pullLeg(ctx, entry.RequestID, tok0.ID, amt0, tx0, req.UserID); err != nil {
		e.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
		return e.fail(entry, err.Error())
	}
	e.Journal.AppendStatus(entry.RequestID, journal.StatusSendToken0Success)

	e.Journal.AppendStatus(entry.RequestID, journal.StatusSendToken1)
	if err := e.pullLeg(ctx, entry.RequestID, tok1.ID, amt1, tx1, req.UserID); err != nil {
		// Second leg failed after the first succeeded: refund leg 0, falling
		// back to a Claim if the refund itself fails (spec.md §4.4 pattern,
		// §7 "never silently lose funds").
		var claimIDs []uint64
		if _, rerr := e.Ledger.Transfer(ctx, tok0.ID, amt0, ledgerclient.Account{Owner: req.UserID}, tok0.Fee, nil, nil); rerr != nil {
			claim := e.Journal.WriteClaim(req.UserID, tok0.ID, amt0, "add_pool refund failed: "+rerr.Error(), e.Now())
			claimIDs = append(claimIDs, claim.ClaimID)
		}
		e.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
		reply := &AddReply{RequestID: entry.RequestID, Status: journal.StatusFailed, ClaimIDs: claimIDs}
		e.Journal.SetReply(entry.RequestID, reply)
		return reply, errors.New(err.Error())
	}
	e.Journal.AppendStatus(entry.RequestID, journal.StatusSendToken1Success)

	maxDP := tok0.Decimals
	if tok1.Decimals > maxDP {
		maxDP = tok1.Decimals
	}
	a0dp := amt0.ToDecimalPrecision(tok0.Decimals, maxDP)
	a1dp := amt1.ToDecimalPrecision(tok1.Decimals, maxDP)
	lpMint := a0dp.Multiply(a1dp).Sqrt()

	lpToken, err := e.Tokens.NewLPToken(tok0.Symbol + "_" + tok1.Symbol)
	if err != nil {
		return nil, err
	}

	p, err := e.Pools.Insert(&Pool{
		Token0ID:   id0,
		Token1ID:   id1,
		Balance0:   amt0,
		Balance1:   amt1,
		LPFee0:     bignat.Zero(),
		LPFee1:     bignat.Zero(),
		LPFeeBps:   lpFeeBps,
		KongFeeBps: kongFeeBps,
		LPTokenID:  lpToken.ID,
	})
	if err != nil {
		return nil, err
	}
	e.Pools.CreditLPPosition(req.UserID, lpToken.ID, lpMint, e.Now())

	e.Journal.AppendStatus(entry.RequestID, journal.StatusSuccess)
	log.Infof("add_pool pool=%d tokens=(%d,%d) lp_minted=%s", p.PoolID, id0, id1, lpMint)

	reply := &AddReply{
		RequestID: entry.RequestID,
		Status:    journal.StatusSuccess,
		PoolID:    p.PoolID,
		LPTokenID: lpToken.ID,
		Amount0:   amt0,
		Amount1:   amt1,
		LPAmount:  lpMint,
	}
	e.Journal.SetReply(entry.RequestID, reply)
	return reply, nil
}

func (e *Engine) pullLeg(ctx context.Context, requestID uint64, tokenID uint32, amount *bignat.BigNat, txID *ledgerclient.TxID, userID string) error {
	if txID != nil {
		if e.Journal.IsTransferSeen(tokenID, *txID) {
			return errors.New("duplicate transfer tx_id")
		}
		if err := e.Ledger.VerifyTransfer(ctx, tokenID, *txID, amount, ledgerclient.Account{Owner: "kong"}, 0); err != nil {
			return err
		}
		_, err := e.Journal.RecordTransfer(requestID, false, tokenID, amount, *txID, e.Now())
		return err
	}
	_, err := e.Ledger.TransferFrom(ctx, tokenID, ledgerclient.Account{Owner: userID}, ledgerclient.Account{Owner: "kong"}, amount)
	return err
}

func (e *Engine) fail(entry *journal.Entry, reason string) (*AddReply, error) {
	reply := &AddReply{RequestID: entry.RequestID, Status: journal.StatusFailed}
	e.Journal.SetReply(entry.RequestID, reply)
	return nil, errors.New(reason)
}
