// Package tokens implements the token model described in spec.md §3: a
// chain-tagged variant (IC, LP, SOL) held in a single Token struct,
// grounded on the teacher's tagged wire-message dispatch style (see
// domainmessage message-type switches in daglabs-btcd).
package tokens

import (
	"github.com/pkg/errors"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
)

// Chain identifies the host chain a token lives on.
type Chain int

const (
	ChainIC Chain = iota
	ChainLP
	ChainSOL
)

func (c Chain) String() string {
	switch c {
	case ChainIC:
		return "IC"
	case ChainLP:
		return "LP"
	case ChainSOL:
		return "SOL"
	default:
		return "UNKNOWN"
	}
}

// Capability names a named ICRC capability a token may support.
type Capability string

const (
	CapICRC1 Capability = "icrc1"
	CapICRC2 Capability = "icrc2"
	CapICRC3 Capability = "icrc3"
)

// Token is the tagged-variant token record of spec.md §3. All three chain
// variants share this single struct (capability trait collapsed to fields)
// rather than being split into IC/LP/SOL structs behind an interface: the
// only behavior that varies by chain in this core is the addressing scheme,
// which callers read off Chain directly.
type Token struct {
	ID           uint32
	Chain        Chain
	Symbol       string
	Address      string
	Decimals     uint8
	Fee          *bignat.BigNat
	Capabilities map[Capability]bool
}

// maxFeeMultiplier bounds a token's fee at 10^decimals * 10 per spec.md §3.
const maxFeeMultiplier = 10

// Validate enforces the Token invariant: fee <= 10^decimals * 10.
func (t *Token) Validate() error {
	if t.Decimals > 24 {
		return errors.Errorf("token %s: decimals %d exceeds maximum of 24", t.Symbol, t.Decimals)
	}
	maxFee := bignat.FromUint64(1).ToDecimalPrecision(0, t.Decimals).Multiply(bignat.FromUint64(maxFeeMultiplier))
	if t.Fee.Cmp(maxFee) > 0 {
		return errors.Errorf("token %s: fee %s exceeds maximum allowed fee %s", t.Symbol, t.Fee, maxFee)
	}
	return nil
}

// HasCapability reports whether the token declares the given capability.
func (t *Token) HasCapability(c Capability) bool {
	return t.Capabilities[c]
}

// Store indexes tokens by id and by (chain, symbol); the address is not part
// of the uniqueness key.
type Store struct {
	byID   map[uint32]*Token
	bySym  map[symKey]*Token
	nextID uint32
}

type symKey struct {
	chain  Chain
	symbol string
}

// NewStore returns an empty token store.
func NewStore() *Store {
	return &Store{
		byID:   make(map[uint32]*Token),
		bySym:  make(map[symKey]*Token),
		nextID: 1,
	}
}

// Insert validates and registers a new token, assigning it an id if ID==0.
// Returns an error if the symbol is already registered on the same chain.
func (s *Store) Insert(t *Token) (*Token, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	key := symKey{chain: t.Chain, symbol: t.Symbol}
	if _, exists := s.bySym[key]; exists {
		return nil, errors.Errorf("token symbol %s already registered on chain %s", t.Symbol, t.Chain)
	}
	if t.ID == 0 {
		t.ID = s.nextID
		s.nextID++
	} else if t.ID >= s.nextID {
		s.nextID = t.ID + 1
	}
	s.byID[t.ID] = t
	s.bySym[key] = t
	return t, nil
}

// GetByID looks up a token by id.
func (s *Store) GetByID(id uint32) (*Token, bool) {
	t, ok := s.byID[id]
	return t, ok
}

// GetBySymbol looks up a token by (chain, symbol).
func (s *Store) GetBySymbol(chain Chain, symbol string) (*Token, bool) {
	t, ok := s.bySym[symKey{chain: chain, symbol: symbol}]
	return t, ok
}

// NewLPToken synthesizes an LP token for a pool, per spec.md §3 ("LP tokens
// are synthesized per pool").
func (s *Store) NewLPToken(symbol string) (*Token, error) {
	return s.Insert(&Token{
		Chain:    ChainLP,
		Symbol:   symbol,
		Address:  symbol,
		Decimals: 8,
		Fee:      bignat.Zero(),
	})
}
