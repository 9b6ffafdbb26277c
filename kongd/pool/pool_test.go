package pool

import (
	"testing"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
)

func newTestPool(id, t0, t1 uint32) *Pool {
	return &Pool{
		PoolID:     id,
		Token0ID:   t0,
		Token1ID:   t1,
		Balance0:   bignat.FromUint64(1000),
		Balance1:   bignat.FromUint64(2000),
		LPFee0:     bignat.Zero(),
		LPFee1:     bignat.Zero(),
		LPFeeBps:   30,
		KongFeeBps: 0,
		LPTokenID:  99,
	}
}

func TestInsertRejectsUnorderedTokens(t *testing.T) {
	s := NewStore()
	if _, err := s.Insert(newTestPool(0, 2, 1)); err == nil {
		t.Fatalf("expected token0_id < token1_id to be enforced")
	}
}

func TestInsertAssignsPoolID(t *testing.T) {
	s := NewStore()
	p, err := s.Insert(newTestPool(0, 1, 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.PoolID != 1 {
		t.Fatalf("expected first pool to get id 1, got %d", p.PoolID)
	}
}

func TestInsertRejectsDuplicatePair(t *testing.T) {
	s := NewStore()
	if _, err := s.Insert(newTestPool(0, 1, 2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Insert(newTestPool(0, 1, 2)); err == nil {
		t.Fatalf("expected duplicate (token0,token1) pair to be rejected")
	}
}

func TestGetByTokenIDsIsOrderInsensitive(t *testing.T) {
	s := NewStore()
	p, _ := s.Insert(newTestPool(0, 1, 2))
	got, ok := s.GetByTokenIDs(2, 1)
	if !ok || got.PoolID != p.PoolID {
		t.Fatalf("expected lookup to normalize token order")
	}
}

func TestUpdateRequiresExistingPool(t *testing.T) {
	s := NewStore()
	if err := s.Update(newTestPool(1, 1, 2)); err == nil {
		t.Fatalf("expected update of unknown pool_id to fail")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	p := newTestPool(1, 1, 2)
	cp := p.Clone()
	cp.Balance0 = cp.Balance0.Add(bignat.FromUint64(1))
	if p.Balance0.Cmp(cp.Balance0) == 0 {
		t.Fatalf("expected clone mutation not to affect original")
	}
}

func TestReservesIncludeLPFee(t *testing.T) {
	p := newTestPool(1, 1, 2)
	p.LPFee0 = bignat.FromUint64(5)
	if p.Reserve0().Uint64() != 1005 {
		t.Fatalf("expected reserve0 = balance0 + lp_fee0, got %s", p.Reserve0())
	}
}

func TestIsEmpty(t *testing.T) {
	p := newTestPool(1, 1, 2)
	p.Balance0 = bignat.Zero()
	p.Balance1 = bignat.Zero()
	if !p.IsEmpty() {
		t.Fatalf("expected zero-reserve pool to be empty")
	}
}

func TestLPPositionCreditDebitAndTotalSupply(t *testing.T) {
	s := NewStore()
	s.CreditLPPosition("alice", 99, bignat.FromUint64(100), 1)
	s.CreditLPPosition("bob", 99, bignat.FromUint64(50), 2)
	if got := s.GetTotalSupply(99).Uint64(); got != 150 {
		t.Fatalf("expected total supply 150, got %d", got)
	}
	if err := s.DebitLPPosition("alice", 99, bignat.FromUint64(40), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.GetLPPosition("alice", 99).Amount.Uint64(); got != 60 {
		t.Fatalf("expected alice's remaining balance to be 60, got %d", got)
	}
	if got := s.GetTotalSupply(99).Uint64(); got != 110 {
		t.Fatalf("expected total supply to reflect the debit, got %d", got)
	}
}

func TestDebitLPPositionRejectsInsufficientBalance(t *testing.T) {
	s := NewStore()
	s.CreditLPPosition("alice", 99, bignat.FromUint64(10), 1)
	if err := s.DebitLPPosition("alice", 99, bignat.FromUint64(11), 2); err == nil {
		t.Fatalf("expected debit exceeding balance to be rejected")
	}
}

func TestGetLPPositionDefaultsToZero(t *testing.T) {
	s := NewStore()
	pos := s.GetLPPosition("nobody", 99)
	if !pos.Amount.IsZero() {
		t.Fatalf("expected zero position for unknown user")
	}
}
