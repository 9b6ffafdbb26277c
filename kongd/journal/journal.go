// Package journal implements the append-only request/transfer log of
// spec.md §4.7: a monotone request_id counter, in-place status appends, and
// a replay-proofing (token_id, tx_id) index over transfers. Grounded on the
// teacher's append-only consensus stores (domain/consensus/datastructures),
// which pair a monotone-keyed map with typed, in-place-updatable records.
package journal

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
	"github.com/KongSwap/kong-sub000/kongd/ledgerclient"
	"github.com/KongSwap/kong-sub000/kongd/logger"
)

var log = logger.Get(logger.SubsystemTags.JRNL)

// StatusCode is one status transition of spec.md §4.7's status vector.
type StatusCode string

const (
	StatusStart              StatusCode = "Start"
	StatusSendToken0         StatusCode = "SendToken0"
	StatusSendToken0Success  StatusCode = "SendToken0Success"
	StatusSendToken1         StatusCode = "SendToken1"
	StatusSendToken1Success  StatusCode = "SendToken1Success"
	StatusReceiveToken       StatusCode = "ReceiveToken"
	StatusSuccess            StatusCode = "Success"
	StatusFailed             StatusCode = "Failed"
)

// RequestKind enumerates the externally visible operations of spec.md §3.
type RequestKind string

const (
	KindAddPool          RequestKind = "AddPool"
	KindAddLiquidity     RequestKind = "AddLiquidity"
	KindRemoveLiquidity  RequestKind = "RemoveLiquidity"
	KindSwap             RequestKind = "Swap"
	KindClaim            RequestKind = "Claim"
	KindSend             RequestKind = "Send"
)

// Entry is the journal's Request record.
type Entry struct {
	RequestID uint64
	UserID    string
	Kind      RequestKind
	Args      interface{}
	Statuses  []StatusCode
	Reply     interface{}
	TsNs      uint64
}

// TerminalStatus reports the entry's terminal state, or ("", false) if the
// request is still in flight. Poll clients (spec.md §5: "clients poll the
// journal... 500ms interval, 60s wall timeout") watch for this.
func (e *Entry) TerminalStatus() (StatusCode, bool) {
	if len(e.Statuses) == 0 {
		return "", false
	}
	last := e.Statuses[len(e.Statuses)-1]
	if last == StatusSuccess || last == StatusFailed {
		return last, true
	}
	return "", false
}

// TransferRecord is spec.md §3's TransferRecord, indexed uniquely by
// (token_id, tx_id) to prevent tx-id replay (P-TX-UNIQUE).
type TransferRecord struct {
	TransferID uint64
	RequestID  uint64
	IsSend     bool
	TokenID    uint32
	Amount     *bignat.BigNat
	TxID       ledgerclient.TxID
	TsNs       uint64
}

// Claim is a persisted receivable created when a payout transfer fails
// (spec.md §4.3/§4.4/§4.5/§7), redeemable on demand (§C of SPEC_FULL.md).
type Claim struct {
	ClaimID   uint64
	UserID    string
	TokenID   uint32
	Amount    *bignat.BigNat
	Reason    string
	CreatedAt uint64
	Redeemed  bool
}

func txKey(tokenID uint32, txID ledgerclient.TxID) string {
	if txID.TransactionHash != "" {
		return "h:" + txID.TransactionHash
	}
	if txID.BlockIndex != nil {
		return "b:" + txID.BlockIndex.String()
	}
	return ""
}

// Journal is the process-wide request/transfer log, mutated only inside
// message handlers (spec.md §5).
type Journal struct {
	mu sync.Mutex

	nextRequestID  uint64
	entries        map[uint64]*Entry

	nextTransferID uint64
	transfersByKey map[uint32]map[string]*TransferRecord

	nextClaimID uint64
	claims      map[uint64]*Claim

	// archiveFn, when set, fires once an entry's status vector first reaches
	// a terminal status (spec.md §4.7), wiring the journal to kong_data
	// archival (Settings.ArchiveToKongData) without this package depending on
	// kongd/etl.
	archiveFn func(*Entry)
}

// New returns an empty journal.
func New() *Journal {
	return &Journal{
		nextRequestID:  1,
		entries:        make(map[uint64]*Entry),
		nextTransferID: 1,
		transfersByKey: make(map[uint32]map[string]*TransferRecord),
		nextClaimID:    1,
		claims:         make(map[uint64]*Claim),
	}
}

// NewRequest allocates a new monotone request id and appends a Start status.
func (j *Journal) NewRequest(userID string, kind RequestKind, args interface{}, nowNs uint64) *Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	e := &Entry{
		RequestID: j.nextRequestID,
		UserID:    userID,
		Kind:      kind,
		Args:      args,
		Statuses:  []StatusCode{StatusStart},
		TsNs:      nowNs,
	}
	j.entries[e.RequestID] = e
	j.nextRequestID++
	log.Debugf("request %d (%s) started for user %s", e.RequestID, kind, userID)
	return e
}

// SetArchiveFunc installs the callback fired once per entry the first time
// its status vector reaches Success or Failed. Pass nil to disable archival.
func (j *Journal) SetArchiveFunc(fn func(*Entry)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.archiveFn = fn
}

// AppendStatus appends a status transition in order (spec.md §4.7:
// "appended in order to the entry's status vector"). The first transition
// into a terminal status fires the archive hook, if one is installed.
func (j *Journal) AppendStatus(requestID uint64, status StatusCode) error {
	j.mu.Lock()
	e, ok := j.entries[requestID]
	if !ok {
		j.mu.Unlock()
		return errors.Errorf("request %d not found", requestID)
	}
	_, wasTerminal := e.TerminalStatus()
	e.Statuses = append(e.Statuses, status)
	fn := j.archiveFn
	j.mu.Unlock()

	if !wasTerminal && fn != nil {
		if status == StatusSuccess || status == StatusFailed {
			fn(e)
		}
	}
	return nil
}

// SetReply attaches the reply once; it is never rewritten (spec.md §4.7).
func (j *Journal) SetReply(requestID uint64, reply interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[requestID]
	if !ok {
		return errors.Errorf("request %d not found", requestID)
	}
	if e.Reply != nil {
		return errors.Errorf("request %d already has a reply", requestID)
	}
	e.Reply = reply
	return nil
}

// Get returns a request entry by id, for journal polling.
func (j *Journal) Get(requestID uint64) (*Entry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[requestID]
	return e, ok
}

// RecordTransfer registers a transfer, rejecting it if (token_id, tx_id) has
// already been recorded (P-TX-UNIQUE).
func (j *Journal) RecordTransfer(requestID uint64, isSend bool, tokenID uint32, amount *bignat.BigNat, txID ledgerclient.TxID, nowNs uint64) (*TransferRecord, error) {
	key := txKey(tokenID, txID)
	j.mu.Lock()
	defer j.mu.Unlock()
	if key != "" {
		if m, ok := j.transfersByKey[tokenID]; ok {
			if _, exists := m[key]; exists {
				return nil, errors.Errorf("duplicate transfer tx_id for token %d", tokenID)
			}
		}
	}
	rec := &TransferRecord{
		TransferID: j.nextTransferID,
		RequestID:  requestID,
		IsSend:     isSend,
		TokenID:    tokenID,
		Amount:     amount,
		TxID:       txID,
		TsNs:       nowNs,
	}
	j.nextTransferID++
	if key != "" {
		m, ok := j.transfersByKey[tokenID]
		if !ok {
			m = make(map[string]*TransferRecord)
			j.transfersByKey[tokenID] = m
		}
		m[key] = rec
	}
	return rec, nil
}

// IsTransferSeen reports whether (token_id, tx_id) has already been recorded,
// used by verify-by-tx_id paths before pulling funds.
func (j *Journal) IsTransferSeen(tokenID uint32, txID ledgerclient.TxID) bool {
	key := txKey(tokenID, txID)
	if key == "" {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	m, ok := j.transfersByKey[tokenID]
	if !ok {
		return false
	}
	_, exists := m[key]
	return exists
}

// WriteClaim persists a receivable for a user when a payout transfer fails
// (spec.md §7: "Never silently lose funds").
func (j *Journal) WriteClaim(userID string, tokenID uint32, amount *bignat.BigNat, reason string, nowNs uint64) *Claim {
	j.mu.Lock()
	defer j.mu.Unlock()
	c := &Claim{
		ClaimID:   j.nextClaimID,
		UserID:    userID,
		TokenID:   tokenID,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: nowNs,
	}
	j.nextClaimID++
	j.claims[c.ClaimID] = c
	log.Warnf("wrote claim %d for user %s: %s of token %d (%s)", c.ClaimID, userID, amount, tokenID, reason)
	return c
}

// ListClaims returns every unredeemed claim for a user.
func (j *Journal) ListClaims(userID string) []*Claim {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*Claim
	for _, c := range j.claims {
		if c.UserID == userID && !c.Redeemed {
			out = append(out, c)
		}
	}
	return out
}

// Redeem marks a claim as redeemed. Callers are responsible for issuing the
// corresponding ledger transfer before calling Redeem.
func (j *Journal) Redeem(claimID uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	c, ok := j.claims[claimID]
	if !ok {
		return errors.Errorf("claim %d not found", claimID)
	}
	if c.Redeemed {
		return errors.Errorf("claim %d already redeemed", claimID)
	}
	c.Redeemed = true
	return nil
}
