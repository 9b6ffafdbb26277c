package market

import (
	"context"
	"testing"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
	"github.com/KongSwap/kong-sub000/kongd/identity"
	"github.com/KongSwap/kong-sub000/kongd/journal"
	"github.com/KongSwap/kong-sub000/kongd/ledgerclient"
)

func mustAmt(t *testing.T, s string) *bignat.BigNat {
	t.Helper()
	n, err := bignat.FromString(s)
	if err != nil {
		t.Fatalf("bignat.FromString(%q): %v", s, err)
	}
	return n
}

type stubLedger struct{}

func (stubLedger) Transfer(ctx context.Context, tokenID uint32, amount *bignat.BigNat, to ledgerclient.Account, fee *bignat.BigNat, memo []byte, createdAtTimeNs *uint64) (*bignat.BigNat, error) {
	return bignat.FromUint64(1), nil
}
func (stubLedger) TransferFrom(ctx context.Context, tokenID uint32, owner, to ledgerclient.Account, amount *bignat.BigNat) (*bignat.BigNat, error) {
	return bignat.FromUint64(1), nil
}
func (stubLedger) BalanceOf(ctx context.Context, tokenID uint32, account ledgerclient.Account) (*bignat.BigNat, error) {
	return bignat.Zero(), nil
}
func (stubLedger) Allowance(ctx context.Context, tokenID uint32, owner, spender ledgerclient.Account) (*ledgerclient.Allowance, error) {
	return &ledgerclient.Allowance{Amount: bignat.Zero()}, nil
}
func (stubLedger) GetBlocks(ctx context.Context, tokenID uint32, start, length uint64) (*ledgerclient.BlockRange, error) {
	return &ledgerclient.BlockRange{}, nil
}
func (stubLedger) VerifyTransfer(ctx context.Context, tokenID uint32, txID ledgerclient.TxID, expectAmount *bignat.BigNat, expectTo ledgerclient.Account, expiresAtNs uint64) error {
	return nil
}

// clockAt returns a Now() func that always reports tsNs, for tests that
// need to pin bet placement times precisely (spec.md §8 scenario 4).
func clockAt(tsNs *uint64) func() uint64 {
	return func() uint64 { return *tsNs }
}

func TestTimeWeightedPayoutMatchesWorkedExample(t *testing.T) {
	var clock uint64
	j := journal.New()
	engine := NewEngine(NewStore(), stubLedger{}, j, identity.NewRegistry(false), clockAt(&clock), 100) // 1% platform fee

	clock = 0
	m, err := engine.CreateMarket(&CreateMarketRequest{
		Creator:           "alice",
		Principal:         "alice",
		Question:          "Yes or No?",
		Outcomes:          []string{"Yes", "No"},
		ResolutionMethod:  ResolutionAdmin,
		TokenID:           1,
		EndTsNs:           120,
		UsesTimeWeighting: true,
		TimeWeightAlpha:   0.1,
	})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}

	ctx := context.Background()
	clock = 0
	if _, err := engine.PlaceBet(ctx, &PlaceBetRequest{UserID: "alice", Principal: "alice", MarketID: m.MarketID, OutcomeIndex: 0, Amount: mustAmt(t, "10000")}); err != nil {
		t.Fatalf("alice bet: %v", err)
	}
	clock = 50
	if _, err := engine.PlaceBet(ctx, &PlaceBetRequest{UserID: "carol", Principal: "carol", MarketID: m.MarketID, OutcomeIndex: 1, Amount: mustAmt(t, "10000")}); err != nil {
		t.Fatalf("carol bet: %v", err)
	}
	clock = 100
	if _, err := engine.PlaceBet(ctx, &PlaceBetRequest{UserID: "bob", Principal: "bob", MarketID: m.MarketID, OutcomeIndex: 0, Amount: mustAmt(t, "10000")}); err != nil {
		t.Fatalf("bob bet: %v", err)
	}

	clock = 120
	if err := engine.Close(m.MarketID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := engine.ProposeResolution(m.MarketID, "alice", []int{0}); err != nil {
		t.Fatalf("ProposeResolution: %v", err)
	}
	records, err := engine.ResolveViaAdmin(ctx, m.MarketID, []int{0})
	if err != nil {
		t.Fatalf("ResolveViaAdmin: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 winning payouts, got %d", len(records))
	}

	byUser := map[string]*bignat.BigNat{}
	for _, r := range records {
		byUser[r.UserID] = r.Amount
	}
	if got := byUser["alice"]; got.Cmp(mustAmt(t, "17920")) != 0 {
		t.Fatalf("alice payout = %s, want 17920", got)
	}
	if got := byUser["bob"]; got.Cmp(mustAmt(t, "11980")) != 0 {
		t.Fatalf("bob payout = %s, want 11980", got)
	}

	total := byUser["alice"].Add(byUser["bob"])
	if total.Cmp(mustAmt(t, "29900")) != 0 {
		t.Fatalf("total payouts = %s, want 29900 (2*10000 + 9900 distributable)", total)
	}
}

func TestMarketRejectsBetBelowActivationThreshold(t *testing.T) {
	var clock uint64
	j := journal.New()
	engine := NewEngine(NewStore(), stubLedger{}, j, identity.NewRegistry(false), clockAt(&clock), 0)

	m, err := engine.CreateMarket(&CreateMarketRequest{
		Creator:             "alice",
		Principal:           "alice",
		Question:            "Q",
		Outcomes:            []string{"Yes", "No"},
		ResolutionMethod:    ResolutionAdmin,
		TokenID:             1,
		EndTsNs:             1000,
		ActivationThreshold: mustAmt(t, "3000"),
	})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}

	_, err = engine.PlaceBet(context.Background(), &PlaceBetRequest{UserID: "alice", Principal: "alice", MarketID: m.MarketID, OutcomeIndex: 0, Amount: mustAmt(t, "100")})
	if err == nil {
		t.Fatal("expected rejection below activation threshold")
	}
	if m.Status != StatusPendingActivation {
		t.Fatalf("market should remain PendingActivation, got %s", m.Status)
	}
}

func TestVoidMarketRefundsAllBettors(t *testing.T) {
	var clock uint64
	j := journal.New()
	engine := NewEngine(NewStore(), stubLedger{}, j, identity.NewRegistry(false), clockAt(&clock), 0)

	m, err := engine.CreateMarket(&CreateMarketRequest{
		Creator:  "alice",
		Principal: "alice",
		Question: "Q",
		Outcomes: []string{"Yes", "No"},
		TokenID:  1,
		EndTsNs:  1000,
	})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	ctx := context.Background()
	if _, err := engine.PlaceBet(ctx, &PlaceBetRequest{UserID: "alice", Principal: "alice", MarketID: m.MarketID, OutcomeIndex: 0, Amount: mustAmt(t, "500")}); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if _, err := engine.PlaceBet(ctx, &PlaceBetRequest{UserID: "bob", Principal: "bob", MarketID: m.MarketID, OutcomeIndex: 1, Amount: mustAmt(t, "700")}); err != nil {
		t.Fatalf("bet: %v", err)
	}

	records, err := engine.VoidMarket(ctx, m.MarketID)
	if err != nil {
		t.Fatalf("VoidMarket: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected a refund record per bettor, got %d", len(records))
	}
	if m.Status != StatusVoided {
		t.Fatalf("expected Voided, got %s", m.Status)
	}
}
