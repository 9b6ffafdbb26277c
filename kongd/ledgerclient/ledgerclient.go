// Package ledgerclient models the host blockchain platform's ledger and
// signature primitives as an external collaborator (spec.md §1: "addressed
// as a remote 'ledger client'"). No implementation lives here — these are
// the interfaces the core calls by name, grounded on daglabs-btcd's
// rpcclient (a thin typed wrapper over a remote node) and kasparov's
// gRPC-based controllers.
package ledgerclient

import (
	"context"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
)

// TxID is either an on-ledger block index or an opaque transaction hash,
// per spec.md §3 TransferRecord.
type TxID struct {
	BlockIndex      *bignat.BigNat
	TransactionHash string
}

// TransferError models a remote transfer failure.
type TransferError struct {
	Reason string
}

func (e *TransferError) Error() string { return e.Reason }

// Account identifies a ledger-side owner (principal/subaccount or address).
type Account struct {
	Owner     string
	Subaccount []byte
}

// Allowance is the result of an icrc2 allowance query.
type Allowance struct {
	Amount    *bignat.BigNat
	ExpiresAt *uint64
}

// BlockRange is a contiguous span of ledger blocks, used for verification.
type BlockRange struct {
	Start  uint64
	Length uint64
	Blocks [][]byte
}

// Client is the remote ledger collaborator interface spec.md §6 names:
// transfer, transfer_from, balance_of, allowance, get_blocks. The Solana path
// is a separate, smaller interface (SolanaClient below), not a Client.
type Client interface {
	Transfer(ctx context.Context, tokenID uint32, amount *bignat.BigNat, to Account, fee *bignat.BigNat, memo []byte, createdAtTimeNs *uint64) (blockIndex *bignat.BigNat, err error)
	TransferFrom(ctx context.Context, tokenID uint32, owner, to Account, amount *bignat.BigNat) (blockIndex *bignat.BigNat, err error)
	BalanceOf(ctx context.Context, tokenID uint32, account Account) (*bignat.BigNat, error)
	Allowance(ctx context.Context, tokenID uint32, owner, spender Account) (*Allowance, error)
	GetBlocks(ctx context.Context, tokenID uint32, start, length uint64) (*BlockRange, error)
	// VerifyTransfer confirms a previously-submitted tx_id actually carries
	// amount to the expected recipient and has not expired, rejecting
	// replays via the (token_id, tx_id) uniqueness check the caller
	// performs against the journal (spec.md §4.3 "Execution" step (a)).
	VerifyTransfer(ctx context.Context, tokenID uint32, txID TxID, expectAmount *bignat.BigNat, expectTo Account, expiresAtNs uint64) error
}

// SolanaClient is the Solana collaborator surface named in spec.md §1 ("a
// Solana path exists as a collaborator interface only") — interface only,
// deliberately unimplemented in this repository.
type SolanaClient interface {
	VerifySignature(ctx context.Context, txHash string, expectAmount *bignat.BigNat, expectTo string) error
	Transfer(ctx context.Context, mint string, amount *bignat.BigNat, to string) (txHash string, err error)
}
