// Package market implements the prediction-market lifecycle, bet placement,
// dual-approval resolution, and time-weighted payout distribution of
// spec.md §4.5. Uses kongd/journal only for tx_id replay checks and Claim
// records (market requests are not entered in the journal's request log),
// and follows kongd/liquidity's refund/Claim fallback pattern for payout
// delivery.
package market

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
	"github.com/KongSwap/kong-sub000/kongd/identity"
	"github.com/KongSwap/kong-sub000/kongd/journal"
	"github.com/KongSwap/kong-sub000/kongd/ledgerclient"
	"github.com/KongSwap/kong-sub000/kongd/logger"
)

var log = logger.Get(logger.SubsystemTags.MRKT)

// Status is a market's lifecycle state, per spec.md §4.5 "Lifecycle".
type Status string

const (
	StatusPendingActivation Status = "PendingActivation"
	StatusActive            Status = "Active"
	StatusClosed            Status = "Closed"
	StatusPendingResolution Status = "PendingResolution"
	StatusSettled           Status = "Settled"
	StatusVoided            Status = "Voided"
)

// ResolutionMethod names who may resolve a market.
type ResolutionMethod string

const (
	ResolutionAdmin       ResolutionMethod = "Admin"
	ResolutionOracle      ResolutionMethod = "Oracle"
	ResolutionDecentralized ResolutionMethod = "Decentralized"
)

// Bet is a single wager against one outcome of a market.
type Bet struct {
	BetID      uint64
	UserID     string
	Outcome    int
	Amount     *bignat.BigNat
	PlacedTsNs uint64
}

// Market is the prediction-market record of spec.md §3/§4.5.
type Market struct {
	MarketID           uint64
	Question           string
	Creator            string
	Outcomes           []string
	ResolutionMethod   ResolutionMethod
	TokenID            uint32
	Status             Status
	CreationTsNs       uint64
	EndTsNs            uint64
	ActivationThreshold *bignat.BigNat
	UsesTimeWeighting  bool
	TimeWeightAlpha    float64

	Bets         []*Bet
	OutcomePools []*bignat.BigNat
	BetCounts    []uint64
	TotalPool    *bignat.BigNat

	PendingResolution []int // winning_outcomes proposed, awaiting confirmation
	WinningOutcomes   []int
}

// PayoutRecord is one winning-bet settlement, returned by
// get_market_payout_records per spec.md §6.
type PayoutRecord struct {
	UserID  string
	BetID   uint64
	Amount  *bignat.BigNat
	ClaimID *uint64
}

// Store indexes markets by id, mutated only inside message handlers
// (spec.md §5, §9 "global mutable state... exposed only via typed accessors").
type Store struct {
	byID   map[uint64]*Market
	nextID uint64
}

// NewStore returns an empty market store.
func NewStore() *Store {
	return &Store{byID: make(map[uint64]*Market), nextID: 1}
}

// GetByID looks up a market by id.
func (s *Store) GetByID(id uint64) (*Market, bool) {
	m, ok := s.byID[id]
	return m, ok
}

// Engine drives market lifecycle operations over a Store, a ledger, and a
// journal of requests.
type Engine struct {
	Markets  *Store
	Ledger   ledgerclient.Client
	Journal  *journal.Journal
	Identity *identity.Registry
	Now      func() uint64
	// PlatformFeeBps is the platform cut of the loser pool on settlement
	// (spec.md §4.5 step 2).
	PlatformFeeBps uint16
}

// NewEngine constructs a market engine.
func NewEngine(markets *Store, ledger ledgerclient.Client, j *journal.Journal, ident *identity.Registry, now func() uint64, platformFeeBps uint16) *Engine {
	return &Engine{Markets: markets, Ledger: ledger, Journal: j, Identity: ident, Now: now, PlatformFeeBps: platformFeeBps}
}

// CreateMarketRequest is the external create_market request shape of
// spec.md §6. Principal is reconciled against Creator via identity.Registry
// before the market's creator identity is fixed (spec.md §9).
type CreateMarketRequest struct {
	Creator             string
	Principal           string
	Question            string
	Outcomes            []string
	ResolutionMethod    ResolutionMethod
	TokenID             uint32
	EndTsNs             uint64
	ActivationThreshold *bignat.BigNat
	UsesTimeWeighting   bool
	TimeWeightAlpha     float64
}

// CreateMarket creates a market in PendingActivation per spec.md §4.5.
func (e *Engine) CreateMarket(req *CreateMarketRequest) (*Market, error) {
	if len(req.Outcomes) < 2 {
		return nil, errors.New("a market requires at least two outcomes")
	}
	now := e.Now()
	if req.EndTsNs <= now {
		return nil, errors.New("end_ts must be in the future")
	}
	creator, err := e.Identity.Resolve(req.Principal, req.Creator)
	if err != nil {
		return nil, err
	}
	m := &Market{
		MarketID:            e.Markets.nextID,
		Question:            req.Question,
		Creator:             creator,
		Outcomes:            req.Outcomes,
		ResolutionMethod:    req.ResolutionMethod,
		TokenID:             req.TokenID,
		Status:              StatusPendingActivation,
		CreationTsNs:        now,
		EndTsNs:             req.EndTsNs,
		ActivationThreshold: req.ActivationThreshold,
		UsesTimeWeighting:   req.UsesTimeWeighting,
		TimeWeightAlpha:     req.TimeWeightAlpha,
		OutcomePools:        make([]*bignat.BigNat, len(req.Outcomes)),
		BetCounts:           make([]uint64, len(req.Outcomes)),
		TotalPool:           bignat.Zero(),
	}
	for i := range m.OutcomePools {
		m.OutcomePools[i] = bignat.Zero()
	}
	e.Markets.byID[m.MarketID] = m
	e.Markets.nextID++
	log.Infof("market %d created by %s, %d outcomes", m.MarketID, creator, len(req.Outcomes))
	return m, nil
}

// PlaceBetRequest is the external place_bet request shape of spec.md §6.
type PlaceBetRequest struct {
	UserID       string
	Principal    string
	MarketID     uint64
	OutcomeIndex int
	Amount       *bignat.BigNat
	TxID         *ledgerclient.TxID
}

// PlaceBet executes place_bet per spec.md §4.5 "Bet".
func (e *Engine) PlaceBet(ctx context.Context, req *PlaceBetRequest) (*Bet, error) {
	m, ok := e.Markets.GetByID(req.MarketID)
	if !ok {
		return nil, errors.Errorf("market %d not found", req.MarketID)
	}
	if req.Amount.IsZero() {
		return nil, errors.New("invalid zero amounts")
	}
	if req.OutcomeIndex < 0 || req.OutcomeIndex >= len(m.Outcomes) {
		return nil, errors.Errorf("outcome index %d out of range", req.OutcomeIndex)
	}
	if m.Status != StatusActive && m.Status != StatusPendingActivation {
		return nil, errors.Errorf("market %d is not accepting bets (status %s)", m.MarketID, m.Status)
	}
	userID, err := e.Identity.Resolve(req.Principal, req.UserID)
	if err != nil {
		return nil, err
	}
	req.UserID = userID
	if m.Status == StatusPendingActivation {
		if req.UserID != m.Creator {
			return nil, errors.New("market awaiting creator's activation bet")
		}
		if m.ActivationThreshold != nil && req.Amount.Cmp(m.ActivationThreshold) < 0 {
			return nil, errors.New("activation bet below required threshold")
		}
	}

	if req.TxID != nil {
		if e.Journal.IsTransferSeen(m.TokenID, *req.TxID) {
			return nil, errors.New("duplicate transfer tx_id")
		}
		if err := e.Ledger.VerifyTransfer(ctx, m.TokenID, *req.TxID, req.Amount, ledgerclient.Account{Owner: "kong"}, 0); err != nil {
			return nil, err
		}
	} else {
		if _, err := e.Ledger.TransferFrom(ctx, m.TokenID, ledgerclient.Account{Owner: req.UserID}, ledgerclient.Account{Owner: "kong"}, req.Amount); err != nil {
			return nil, err
		}
	}

	now := e.Now()
	bet := &Bet{BetID: uint64(len(m.Bets) + 1), UserID: req.UserID, Outcome: req.OutcomeIndex, Amount: req.Amount, PlacedTsNs: now}
	m.Bets = append(m.Bets, bet)
	m.OutcomePools[req.OutcomeIndex] = m.OutcomePools[req.OutcomeIndex].Add(req.Amount)
	m.TotalPool = m.TotalPool.Add(req.Amount)
	m.BetCounts[req.OutcomeIndex]++
	if m.Status == StatusPendingActivation {
		m.Status = StatusActive
		log.Infof("market %d activated by creator's bet", m.MarketID)
	}
	return bet, nil
}

// Close transitions a market past its end_ts to Closed; no further bets are
// accepted (spec.md §4.5).
func (e *Engine) Close(marketID uint64) error {
	m, ok := e.Markets.GetByID(marketID)
	if !ok {
		return errors.Errorf("market %d not found", marketID)
	}
	if e.Now() < m.EndTsNs {
		return errors.New("market has not reached end_ts")
	}
	if m.Status != StatusActive {
		return errors.Errorf("market %d is not Active (status %s)", marketID, m.Status)
	}
	m.Status = StatusClosed
	return nil
}

// ProposeResolution records a proposed winning set, awaiting confirmation
// (spec.md §4.5 "dual-approval").
func (e *Engine) ProposeResolution(marketID uint64, proposer string, winningOutcomes []int) error {
	m, ok := e.Markets.GetByID(marketID)
	if !ok {
		return errors.Errorf("market %d not found", marketID)
	}
	if m.Status != StatusClosed {
		return errors.Errorf("market %d must be Closed before resolution (status %s)", marketID, m.Status)
	}
	if proposer != m.Creator && m.ResolutionMethod != ResolutionOracle {
		return errors.New("only the creator or an oracle may propose resolution")
	}
	if err := validOutcomeSet(m, winningOutcomes); err != nil {
		return err
	}
	m.PendingResolution = winningOutcomes
	m.Status = StatusPendingResolution
	return nil
}

// ResolveViaAdmin confirms a pending resolution (or, for Admin-resolved
// markets, resolves directly) and pays out winners, per spec.md §4.5.
func (e *Engine) ResolveViaAdmin(ctx context.Context, marketID uint64, winningOutcomes []int) ([]*PayoutRecord, error) {
	m, ok := e.Markets.GetByID(marketID)
	if !ok {
		return nil, errors.Errorf("market %d not found", marketID)
	}
	switch m.Status {
	case StatusPendingResolution:
		if !sameOutcomeSet(m.PendingResolution, winningOutcomes) {
			return nil, errors.New("admin confirmation does not match the proposed resolution")
		}
	case StatusClosed:
		if m.ResolutionMethod != ResolutionAdmin {
			return nil, errors.New("market requires a creator/oracle proposal before admin confirmation")
		}
	default:
		return nil, errors.Errorf("market %d is not ready for resolution (status %s)", marketID, m.Status)
	}
	if err := validOutcomeSet(m, winningOutcomes); err != nil {
		return nil, err
	}

	m.WinningOutcomes = winningOutcomes
	m.Status = StatusSettled
	records := e.payout(ctx, m)
	log.Infof("market %d settled, winning outcomes %v, %d payouts", m.MarketID, winningOutcomes, len(records))
	return records, nil
}

// VoidMarket marks a market Voided and refunds every bettor their original
// stake on the same token (Claim-backed), per spec.md §4.5.
func (e *Engine) VoidMarket(ctx context.Context, marketID uint64) ([]*PayoutRecord, error) {
	m, ok := e.Markets.GetByID(marketID)
	if !ok {
		return nil, errors.Errorf("market %d not found", marketID)
	}
	if m.Status == StatusSettled || m.Status == StatusVoided {
		return nil, errors.Errorf("market %d already finalized (status %s)", marketID, m.Status)
	}
	m.Status = StatusVoided

	var records []*PayoutRecord
	for _, b := range m.Bets {
		rec := &PayoutRecord{UserID: b.UserID, BetID: b.BetID, Amount: b.Amount}
		if _, err := e.Ledger.Transfer(ctx, m.TokenID, b.Amount, ledgerclient.Account{Owner: b.UserID}, bignat.Zero(), nil, nil); err != nil {
			claim := e.Journal.WriteClaim(b.UserID, m.TokenID, b.Amount, "void_market refund failed: "+err.Error(), e.Now())
			rec.ClaimID = &claim.ClaimID
		}
		records = append(records, rec)
	}
	return records, nil
}

// payout distributes the loser pool to winning bets per spec.md §4.5
// "Resolution & payout", steps 1-5.
func (e *Engine) payout(ctx context.Context, m *Market) []*PayoutRecord {
	winnerPool := bignat.Zero()
	for _, i := range m.WinningOutcomes {
		winnerPool = winnerPool.Add(m.OutcomePools[i])
	}
	loserPool := m.TotalPool.Subtract(winnerPool)
	platformFee := loserPool.Multiply(bignat.FromUint64(uint64(e.PlatformFeeBps))).Divide(bignat.FromUint64(10000))
	if platformFee == nil {
		platformFee = bignat.Zero()
	}
	distributable := loserPool.Subtract(platformFee)

	winSet := map[int]bool{}
	for _, i := range m.WinningOutcomes {
		winSet[i] = true
	}

	type weighted struct {
		bet    *Bet
		weight float64
		share  *bignat.BigNat // amount * weight, scaled by 1e9 for fixed-point sum
	}
	const weightScale = 1_000_000_000
	var winners []weighted
	wTotal := bignat.Zero()
	for _, b := range m.Bets {
		if !winSet[b.Outcome] {
			continue
		}
		w := 1.0
		if m.UsesTimeWeighting {
			w = timeWeight(m, b)
		}
		scaledWeight := bignat.FromUint64(uint64(w * weightScale))
		share := b.Amount.Multiply(scaledWeight)
		winners = append(winners, weighted{bet: b, weight: w, share: share})
		wTotal = wTotal.Add(share)
	}

	// Deterministic payout order: earliest bets first, so any residual
	// rounding dust is stable across re-derivations of the same market.
	sort.SliceStable(winners, func(i, j int) bool {
		return winners[i].bet.PlacedTsNs < winners[j].bet.PlacedTsNs
	})

	// Every winner's share is floor-divided, which can leave a residual
	// below distributable undistributed; spec.md §4.5 step 2/§8 P-MKT-SUM
	// directs that residual into platform_fee rather than a winner's
	// payout, so it is tracked here and folded into platformFee instead of
	// being added to any single bet.
	extrasTotal := bignat.Zero()
	var records []*PayoutRecord
	for _, w := range winners {
		payout := w.bet.Amount.Clone()
		if !wTotal.IsZero() {
			extra := distributable.Multiply(w.share).Divide(wTotal)
			if extra != nil {
				payout = payout.Add(extra)
				extrasTotal = extrasTotal.Add(extra)
			}
		}

		rec := &PayoutRecord{UserID: w.bet.UserID, BetID: w.bet.BetID, Amount: payout}
		if _, err := e.Ledger.Transfer(ctx, m.TokenID, payout, ledgerclient.Account{Owner: w.bet.UserID}, bignat.Zero(), nil, nil); err != nil {
			claim := e.Journal.WriteClaim(w.bet.UserID, m.TokenID, payout, "market payout failed: "+err.Error(), e.Now())
			rec.ClaimID = &claim.ClaimID
		}
		records = append(records, rec)
	}

	dust := distributable.Subtract(extrasTotal)
	platformFee = platformFee.Add(dust)
	log.Infof("market %d payout: loser_pool=%s platform_fee=%s (dust=%s) distributable=%s", m.MarketID, loserPool, platformFee, dust, distributable)
	return records
}

// timeWeight computes w(b) = alpha + (1-alpha)*age per spec.md §4.5, where
// age is the bet's normalized elapsed time within the market window.
func timeWeight(m *Market, b *Bet) float64 {
	span := m.EndTsNs - m.CreationTsNs
	if span == 0 {
		return m.TimeWeightAlpha
	}
	age := float64(m.EndTsNs-b.PlacedTsNs) / float64(span)
	if age < 0 {
		age = 0
	}
	if age > 1 {
		age = 1
	}
	return m.TimeWeightAlpha + (1-m.TimeWeightAlpha)*age
}

func validOutcomeSet(m *Market, winningOutcomes []int) error {
	if len(winningOutcomes) == 0 {
		return errors.New("winning_outcomes must not be empty")
	}
	seen := map[int]bool{}
	for _, i := range winningOutcomes {
		if i < 0 || i >= len(m.Outcomes) {
			return errors.Errorf("outcome index %d out of range", i)
		}
		if seen[i] {
			return errors.Errorf("duplicate outcome index %d", i)
		}
		seen[i] = true
	}
	return nil
}

func sameOutcomeSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	as := map[int]bool{}
	for _, i := range a {
		as[i] = true
	}
	for _, i := range b {
		if !as[i] {
			return false
		}
	}
	return true
}
