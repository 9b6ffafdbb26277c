// Package pool implements the in-memory pool store of spec.md §4.2: a
// mapping of pool-id -> reserves/fees/LP-token-id, indexed by
// (token0-id, token1-id). Grounded on the teacher's in-memory datastore
// shape (domain/consensus/datastructures/*, e.g. ghostdagdatastore), which
// pairs a staging map with lookups keyed by a composite identity.
package pool

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
)

// Pool is the reserve/fee record of spec.md §3.
type Pool struct {
	PoolID     uint32
	Token0ID   uint32
	Token1ID   uint32
	Balance0   *bignat.BigNat
	Balance1   *bignat.BigNat
	LPFee0     *bignat.BigNat
	LPFee1     *bignat.BigNat
	LPFeeBps   uint8
	KongFeeBps uint8
	LPTokenID  uint32
}

// Reserve0 returns balance_0 + lp_fee_0.
func (p *Pool) Reserve0() *bignat.BigNat {
	return p.Balance0.Add(p.LPFee0)
}

// Reserve1 returns balance_1 + lp_fee_1.
func (p *Pool) Reserve1() *bignat.BigNat {
	return p.Balance1.Add(p.LPFee1)
}

// IsEmpty reports whether the pool holds no reserves on either side.
func (p *Pool) IsEmpty() bool {
	return p.Reserve0().IsZero() && p.Reserve1().IsZero()
}

// Clone returns a deep-enough copy of p safe to mutate independently. Used
// by callers that must re-read state after an await point (§5) and recompute
// against a consistent snapshot.
func (p *Pool) Clone() *Pool {
	cp := *p
	cp.Balance0 = p.Balance0.Clone()
	cp.Balance1 = p.Balance1.Clone()
	cp.LPFee0 = p.LPFee0.Clone()
	cp.LPFee1 = p.LPFee1.Clone()
	return &cp
}

type tokenPairKey struct {
	token0 uint32
	token1 uint32
}

// LPPosition is a user's LP-token holding, per spec.md §3.
type LPPosition struct {
	UserID      string
	LPTokenID   uint32
	Amount      *bignat.BigNat
	UpdatedTsNs uint64
}

// Store is the process-wide pool map, exposed only via typed accessors per
// spec.md §9 ("Global mutable state... exposed only via typed accessors").
type Store struct {
	mu        sync.RWMutex
	byID      map[uint32]*Pool
	byTokens  map[tokenPairKey]*Pool
	positions map[uint32]map[string]*LPPosition // lpTokenID -> userID -> position
	nextID    uint32
}

// NewStore returns an empty pool store.
func NewStore() *Store {
	return &Store{
		byID:      make(map[uint32]*Pool),
		byTokens:  make(map[tokenPairKey]*Pool),
		positions: make(map[uint32]map[string]*LPPosition),
		nextID:    1,
	}
}

func orderedKey(a, b uint32) tokenPairKey {
	if a < b {
		return tokenPairKey{token0: a, token1: b}
	}
	return tokenPairKey{token0: b, token1: a}
}

// GetByTokenIDs is order-sensitive per spec.md §4.2, but pools are always
// stored under the canonical (lower, higher) id pair (spec.md §3's
// token0_id < token1_id invariant), so lookups normalize the query order
// and the caller is responsible for interpreting which side is which.
func (s *Store) GetByTokenIDs(id0, id1 uint32) (*Pool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byTokens[orderedKey(id0, id1)]
	return p, ok
}

// GetByID looks up a pool by its pool_id.
func (s *Store) GetByID(poolID uint32) (*Pool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[poolID]
	return p, ok
}

// Insert registers a new pool for (token0,token1). Requires no prior pool
// exists for that pair, and that token0ID < token1ID (spec.md §3 invariant).
func (s *Store) Insert(p *Pool) (*Pool, error) {
	if p.Token0ID >= p.Token1ID {
		return nil, errors.Errorf("pool tokens must satisfy token0_id < token1_id, got (%d, %d)", p.Token0ID, p.Token1ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orderedKey(p.Token0ID, p.Token1ID)
	if _, exists := s.byTokens[key]; exists {
		return nil, errors.Errorf("pool already exists for tokens (%d, %d)", p.Token0ID, p.Token1ID)
	}
	if p.PoolID == 0 {
		p.PoolID = s.nextID
		s.nextID++
	} else if p.PoolID >= s.nextID {
		s.nextID = p.PoolID + 1
	}
	s.byID[p.PoolID] = p
	s.byTokens[key] = p
	return p, nil
}

// Update replaces the pool with the given pool_id. This is the only mutation
// path once a pool exists — callers must read-clone-mutate-Update across
// await boundaries per spec.md §5.
func (s *Store) Update(p *Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[p.PoolID]; !exists {
		return errors.Errorf("pool %d not found", p.PoolID)
	}
	s.byID[p.PoolID] = p
	s.byTokens[orderedKey(p.Token0ID, p.Token1ID)] = p
	return nil
}

// CreditLPPosition adds amount to the user's LP position for lpTokenID,
// creating the position if absent.
func (s *Store) CreditLPPosition(userID string, lpTokenID uint32, amount *bignat.BigNat, nowNs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.positions[lpTokenID]
	if !ok {
		m = make(map[string]*LPPosition)
		s.positions[lpTokenID] = m
	}
	pos, ok := m[userID]
	if !ok {
		pos = &LPPosition{UserID: userID, LPTokenID: lpTokenID, Amount: bignat.Zero()}
		m[userID] = pos
	}
	pos.Amount = pos.Amount.Add(amount)
	pos.UpdatedTsNs = nowNs
}

// DebitLPPosition subtracts amount from the user's LP position, returning an
// error if the position holds less than amount (spec.md §4.4 "reject if
// insufficient").
func (s *Store) DebitLPPosition(userID string, lpTokenID uint32, amount *bignat.BigNat, nowNs uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.positions[lpTokenID]
	if !ok {
		return errors.Errorf("user %s has no LP position for token %d", userID, lpTokenID)
	}
	pos, ok := m[userID]
	if !ok || pos.Amount.Cmp(amount) < 0 {
		return errors.Errorf("user %s has insufficient LP balance for token %d", userID, lpTokenID)
	}
	pos.Amount = pos.Amount.Subtract(amount)
	pos.UpdatedTsNs = nowNs
	return nil
}

// GetLPPosition returns the user's position for an LP token, or a zero
// position if none exists.
func (s *Store) GetLPPosition(userID string, lpTokenID uint32) *LPPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.positions[lpTokenID]; ok {
		if pos, ok := m[userID]; ok {
			cp := *pos
			cp.Amount = pos.Amount.Clone()
			return &cp
		}
	}
	return &LPPosition{UserID: userID, LPTokenID: lpTokenID, Amount: bignat.Zero()}
}

// GetTotalSupply sums all positions for an LP token, per spec.md §4.2.
func (s *Store) GetTotalSupply(lpTokenID uint32) *bignat.BigNat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := bignat.Zero()
	for _, pos := range s.positions[lpTokenID] {
		total = total.Add(pos.Amount)
	}
	return total
}
