// Package liquidity implements the add/remove liquidity engine of spec.md
// §4.4: ratio-matched deposits minting LP share, and pro-rata withdrawals
// burning it. Grounded on the same read-clone-mutate-Update discipline as
// kongd/swap (itself grounded on the teacher's mining.NewBlockTemplate
// snapshot style), since both engines share the pool store's reentrancy
// rules (spec.md §5).
package liquidity

import (
	"context"

	"github.com/pkg/errors"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
	"github.com/KongSwap/kong-sub000/kongd/identity"
	"github.com/KongSwap/kong-sub000/kongd/journal"
	"github.com/KongSwap/kong-sub000/kongd/ledgerclient"
	"github.com/KongSwap/kong-sub000/kongd/logger"
	"github.com/KongSwap/kong-sub000/kongd/pool"
	"github.com/KongSwap/kong-sub000/kongd/tokens"
)

var log = logger.Get(logger.SubsystemTags.LIQD)

// AddRequest is the external add_liquidity request shape of spec.md §6.
// Principal is reconciled against UserID via identity.Registry before
// either is trusted for crediting an LP position (spec.md §9).
type AddRequest struct {
	UserID    string
	Principal string
	Token0Sym string
	Amount0   *bignat.BigNat
	TxID0     *ledgerclient.TxID
	Token1Sym string
	Amount1   *bignat.BigNat
	TxID1     *ledgerclient.TxID
}

// AddReply is the external add_liquidity reply shape.
type AddReply struct {
	RequestID uint64
	Status    journal.StatusCode
	Amount0   *bignat.BigNat
	Amount1   *bignat.BigNat
	LPAmount  *bignat.BigNat
	ClaimIDs  []uint64
}

// RemoveRequest is the external remove_liquidity request shape of spec.md §6.
type RemoveRequest struct {
	UserID            string
	Principal         string
	Token0Sym         string
	Token1Sym         string
	RemoveLPAmount    *bignat.BigNat
	ReceiveAccount0   ledgerclient.Account
	ReceiveAccount1   ledgerclient.Account
}

// RemoveReply is the external remove_liquidity reply shape.
type RemoveReply struct {
	RequestID uint64
	Status    journal.StatusCode
	Amount0   *bignat.BigNat
	Amount1   *bignat.BigNat
	ClaimIDs  []uint64
}

// Engine mutates a pool store's reserves and LP positions. It never caches
// a pool across an await: every public method re-fetches from Pools right
// before mutating, per spec.md §5.
type Engine struct {
	Pools    *pool.Store
	Tokens   *tokens.Store
	Ledger   ledgerclient.Client
	Journal  *journal.Journal
	Identity *identity.Registry
	Now      func() uint64
}

// NewEngine constructs a liquidity engine over the given stores.
func NewEngine(pools *pool.Store, toks *tokens.Store, ledger ledgerclient.Client, j *journal.Journal, ident *identity.Registry, now func() uint64) *Engine {
	return &Engine{Pools: pools, Tokens: toks, Ledger: ledger, Journal: j, Identity: ident, Now: now}
}

// Add executes an add_liquidity request end to end per spec.md §4.4 "Add".
func (e *Engine) Add(ctx context.Context, req *AddRequest) (*AddReply, error) {
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

	entry := e.Journal.NewRequest(req.UserID, journal.KindAddLiquidity, req, e.Now())

	p, ok := e.Pools.GetByTokenIDs(id0, id1)
	if !ok {
		e.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
		return e.failAdd(entry, "Pool not found")
	}

	consume0, consume1, lpMint, err := e.priceDeposit(p, tok0, tok1, amt0, amt1)
	if err != nil {
		e.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
		return e.failAdd(entry, err.Error())
	}

	e.Journal.AppendStatus(entry.RequestID, journal.StatusSendToken0)
	if err := e.pullToken(ctx, entry.RequestID, tok0.ID, consume0, tx0, req.UserID); err != nil {
		e.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
		return e.failAdd(entry, err.Error())
	}
	e.Journal.AppendStatus(entry.RequestID, journal.StatusSendToken0Success)

	e.Journal.AppendStatus(entry.RequestID, journal.StatusSendToken1)
	if err := e.pullToken(ctx, entry.RequestID, tok1.ID, consume1, tx1, req.UserID); err != nil {
		// Second leg failed after the first succeeded: refund leg 0, falling
		// back to a Claim if the refund itself fails (spec.md §4.4, §7).
		var claimIDs []uint64
		if _, rerr := e.Ledger.Transfer(ctx, tok0.ID, consume0, ledgerclient.Account{Owner: req.UserID}, tok0.Fee, nil, nil); rerr != nil {
			claim := e.Journal.WriteClaim(req.UserID, tok0.ID, consume0, "add_liquidity refund failed: "+rerr.Error(), e.Now())
			claimIDs = append(claimIDs, claim.ClaimID)
		}
		e.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
		reply := &AddReply{RequestID: entry.RequestID, Status: journal.StatusFailed, ClaimIDs: claimIDs}
		e.Journal.SetReply(entry.RequestID, reply)
		return reply, errors.New(err.Error())
	}
	e.Journal.AppendStatus(entry.RequestID, journal.StatusSendToken1Success)

	// Re-fetch and mutate: balance_i += amount_i, credit LP position.
	p, ok = e.Pools.GetByTokenIDs(id0, id1)
	if !ok {
		return nil, errors.Errorf("pool %d vanished mid-request", p.PoolID)
	}
	cp := p.Clone()
	cp.Balance0 = cp.Balance0.Add(consume0)
	cp.Balance1 = cp.Balance1.Add(consume1)
	if err := e.Pools.Update(cp); err != nil {
		return nil, err
	}
	e.Pools.CreditLPPosition(req.UserID, cp.LPTokenID, lpMint, e.Now())

	e.Journal.AppendStatus(entry.RequestID, journal.StatusSuccess)
	log.Infof("add_liquidity pool=%d user=%s lp_minted=%s", cp.PoolID, req.UserID, lpMint)

	reply := &AddReply{
		RequestID: entry.RequestID,
		Status:    journal.StatusSuccess,
		Amount0:   consume0,
		Amount1:   consume1,
		LPAmount:  lpMint,
	}
	e.Journal.SetReply(entry.RequestID, reply)
	return reply, nil
}

// priceDeposit implements spec.md §4.4's ratio-matching rule, returning the
// amounts actually consumed (which may be less than requested on one side)
// and the LP amount to mint.
func (e *Engine) priceDeposit(p *pool.Pool, tok0, tok1 *tokens.Token, amt0, amt1 *bignat.BigNat) (*bignat.BigNat, *bignat.BigNat, *bignat.BigNat, error) {
	if p.IsEmpty() {
		maxDP := tok0.Decimals
		if tok1.Decimals > maxDP {
			maxDP = tok1.Decimals
		}
		a0dp := amt0.ToDecimalPrecision(tok0.Decimals, maxDP)
		a1dp := amt1.ToDecimalPrecision(tok1.Decimals, maxDP)
		lp := a0dp.Multiply(a1dp).Sqrt()
		return amt0, amt1, lp, nil
	}

	r0, r1 := p.Reserve0(), p.Reserve1()
	totalSupply := e.Pools.GetTotalSupply(p.LPTokenID)

	// needed_1 = amount_0 * R1 / R0, expressed in token_1's decimals.
	needed1 := amt0.Multiply(r1).Divide(r0)
	if needed1 != nil && amt1.Cmp(needed1) >= 0 {
		lp := totalSupply.Multiply(amt0).Divide(r0)
		if lp == nil {
			return nil, nil, nil, errors.New("Pool has zero reserve_0")
		}
		return amt0, needed1, lp, nil
	}

	needed0 := amt1.Multiply(r0).Divide(r1)
	if needed0 != nil && amt0.Cmp(needed0) >= 0 {
		lp := totalSupply.Multiply(amt1).Divide(r1)
		if lp == nil {
			return nil, nil, nil, errors.New("Pool has zero reserve_1")
		}
		return needed0, amt1, lp, nil
	}

	return nil, nil, nil, errors.New("Incorrect ratio of amount_0 and amount_1")
}

func (e *Engine) pullToken(ctx context.Context, requestID uint64, tokenID uint32, amount *bignat.BigNat, txID *ledgerclient.TxID, userID string) error {
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

func (e *Engine) failAdd(entry *journal.Entry, reason string) (*AddReply, error) {
	reply := &AddReply{RequestID: entry.RequestID, Status: journal.StatusFailed}
	e.Journal.SetReply(entry.RequestID, reply)
	return nil, errors.New(reason)
}

// Remove executes a remove_liquidity request per spec.md §4.4 "Remove".
func (e *Engine) Remove(ctx context.Context, req *RemoveRequest) (*RemoveReply, error) {
	if req.RemoveLPAmount.IsZero() {
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
	userID, err := e.Identity.Resolve(req.Principal, req.UserID)
	if err != nil {
		return nil, err
	}
	req.UserID = userID

	entry := e.Journal.NewRequest(req.UserID, journal.KindRemoveLiquidity, req, e.Now())

	p, ok := e.Pools.GetByTokenIDs(tok0.ID, tok1.ID)
	if !ok {
		e.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
		return e.failRemove(entry, "Pool not found")
	}

	if err := e.Pools.DebitLPPosition(req.UserID, p.LPTokenID, req.RemoveLPAmount, e.Now()); err != nil {
		e.Journal.AppendStatus(entry.RequestID, journal.StatusFailed)
		return e.failRemove(entry, err.Error())
	}

	totalSupplyBefore := e.Pools.GetTotalSupply(p.LPTokenID).Add(req.RemoveLPAmount)

	payout0, fee0 := shareOf(p.Balance0, p.LPFee0, req.RemoveLPAmount, totalSupplyBefore)
	payout1, fee1 := shareOf(p.Balance1, p.LPFee1, req.RemoveLPAmount, totalSupplyBefore)

	cp := p.Clone()
	cp.Balance0 = cp.Balance0.Subtract(payout0)
	cp.Balance1 = cp.Balance1.Subtract(payout1)
	cp.LPFee0 = cp.LPFee0.Subtract(fee0)
	cp.LPFee1 = cp.LPFee1.Subtract(fee1)
	if err := e.Pools.Update(cp); err != nil {
		return nil, err
	}

	gross0 := payout0.Add(fee0)
	gross1 := payout1.Add(fee1)
	net0 := gross0.Subtract(tok0.Fee)
	net1 := gross1.Subtract(tok1.Fee)

	var claimIDs []uint64
	if _, err := e.Ledger.Transfer(ctx, tok0.ID, net0, req.ReceiveAccount0, tok0.Fee, nil, nil); err != nil {
		claim := e.Journal.WriteClaim(req.UserID, tok0.ID, net0, "remove_liquidity payout0 failed: "+err.Error(), e.Now())
		claimIDs = append(claimIDs, claim.ClaimID)
	}
	if _, err := e.Ledger.Transfer(ctx, tok1.ID, net1, req.ReceiveAccount1, tok1.Fee, nil, nil); err != nil {
		claim := e.Journal.WriteClaim(req.UserID, tok1.ID, net1, "remove_liquidity payout1 failed: "+err.Error(), e.Now())
		claimIDs = append(claimIDs, claim.ClaimID)
	}

	e.Journal.AppendStatus(entry.RequestID, journal.StatusSuccess)
	log.Infof("remove_liquidity pool=%d user=%s lp_burned=%s", p.PoolID, req.UserID, req.RemoveLPAmount)

	reply := &RemoveReply{
		RequestID: entry.RequestID,
		Status:    journal.StatusSuccess,
		Amount0:   net0,
		Amount1:   net1,
		ClaimIDs:  claimIDs,
	}
	e.Journal.SetReply(entry.RequestID, reply)
	return reply, nil
}

// shareOf computes the balance-side and fee-side shares of a withdrawal
// separately (amount_i = balance_i * lp_amount / total_supply, lp_fee_i =
// pool.lp_fee_i * lp_amount / total_supply) so the caller can sum them into
// "amount + lp_fee - gas_fee" per spec.md §4.4 without double-counting the
// fee portion that's already folded into Reserve_i = balance_i + lp_fee_i.
func shareOf(balance, lpFee, lpAmount, totalSupply *bignat.BigNat) (*bignat.BigNat, *bignat.BigNat) {
	payout := balance.Multiply(lpAmount).Divide(totalSupply)
	if payout == nil {
		payout = bignat.Zero()
	}
	fee := lpFee.Multiply(lpAmount).Divide(totalSupply)
	if fee == nil {
		fee = bignat.Zero()
	}
	return payout, fee
}

func (e *Engine) failRemove(entry *journal.Entry, reason string) (*RemoveReply, error) {
	reply := &RemoveReply{RequestID: entry.RequestID, Status: journal.StatusFailed}
	e.Journal.SetReply(entry.RequestID, reply)
	return nil, errors.New(reason)
}
