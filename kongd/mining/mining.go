// Package mining implements the proof-of-work block-emission subsystem of
// spec.md §4.6: block templates, double-SHA256 solution verification,
// difficulty retargeting, heartbeat stall relief, and the halving reward
// schedule. The header serialization is grounded on the teacher's
// hashserialization.HeaderHash (domain/consensus/utils/hashserialization/
// header.go): a fixed field order written through a double-SHA256 writer.
// Block-template construction follows blockdag.BlockForMining's shape of
// deriving the next template from DAG tip state (here, from the single
// current accepted block).
package mining

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/KongSwap/kong-sub000/kongd/bignat"
	"github.com/KongSwap/kong-sub000/kongd/identity"
	"github.com/KongSwap/kong-sub000/kongd/journal"
	"github.com/KongSwap/kong-sub000/kongd/ledgerclient"
	"github.com/KongSwap/kong-sub000/kongd/logger"
)

var log = logger.Get(logger.SubsystemTags.MINR)

const (
	minDifficulty        = 5
	retargetFactorFloor  = 0.75
	retargetFactorCeil   = 1.25
	stallThresholdTicks  = 5
	stallReliefFactor    = 0.85
	maxHalvings          = 64
	recentTimestampsCap  = 64
	solutionsBloomN      = 1_000_000
	solutionsBloomFPRate = 0.001
	solutionsLRUSize     = 4096
)

// maxTarget is the widest (easiest) target, matching the teacher's
// genesis-difficulty convention of a near-maximal 256-bit threshold.
var maxTarget = func() [32]byte {
	var t [32]byte
	for i := range t {
		t[i] = 0xff
	}
	t[0] = 0x00 // leave the top byte clear so maxTarget isn't the absolute ceiling
	return t
}()

// BlockTemplate is the in-flight block header awaiting a solution, per
// spec.md §3/§4.6.
type BlockTemplate struct {
	Height       uint64
	PrevHash     [32]byte
	TimestampSec uint64
	MerkleRoot   [32]byte // reserved placeholder, spec.md §4.6 "generate_new_block"
	Difficulty   uint32
	Target       [32]byte
}

// Solution is an accepted proof-of-work submission.
type Solution struct {
	Height uint64
	Nonce  uint64
	Hash   [32]byte
}

// RewardSchedule is the halving reward schedule of spec.md §4.6 "Halving".
type RewardSchedule struct {
	InitialReward   uint64
	HalvingInterval uint64 // 0 disables halving (constant reward)
}

// CalculateBlockReward returns calculate_block_reward(h): initial_reward
// right-shifted once per halving_interval blocks, 0 past 64 halvings.
func (r RewardSchedule) CalculateBlockReward(height uint64) uint64 {
	if r.InitialReward == 0 {
		return 0
	}
	if r.HalvingInterval == 0 {
		return r.InitialReward
	}
	halvings := (height - 1) / r.HalvingInterval
	if halvings >= maxHalvings {
		return 0
	}
	return r.InitialReward >> halvings
}

// CalculateTarget implements calculate_target(difficulty): a fixed
// max_target right-shifted by a monotone function of difficulty, so that
// doubling difficulty halves the numeric target. Solution is valid iff
// hash <= target.
func CalculateTarget(difficulty uint32) [32]byte {
	if difficulty < 1 {
		difficulty = 1
	}
	shift := uint(math.Log2(float64(difficulty)))
	return shiftRight(maxTarget, shift)
}

func shiftRight(in [32]byte, bits uint) [32]byte {
	var out [32]byte
	byteShift := bits / 8
	bitShift := bits % 8
	for i := 31; i >= 0; i-- {
		srcIdx := i - int(byteShift)
		if srcIdx < 0 {
			continue
		}
		v := uint16(in[srcIdx]) >> bitShift
		if bitShift > 0 && srcIdx > 0 {
			v |= uint16(in[srcIdx-1]) << (8 - bitShift)
		}
		out[i] = byte(v)
	}
	return out
}

// cmpBytes compares two 32-byte big-endian values as unsigned integers.
func cmpBytes(a, b [32]byte) int {
	return bytes.Compare(a[:], b[:])
}

// SerializeHeader writes the block header in the fixed byte layout of
// spec.md §4.6: version || height || prev_hash || timestamp_be ||
// merkle_root || difficulty_be || nonce_be. The exact serialization is
// deterministic and a hard fork boundary (spec.md §9).
func SerializeHeader(version uint32, tmpl *BlockTemplate, nonce uint64) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, version)
	binary.Write(buf, binary.BigEndian, tmpl.Height)
	buf.Write(tmpl.PrevHash[:])
	binary.Write(buf, binary.BigEndian, tmpl.TimestampSec)
	buf.Write(tmpl.MerkleRoot[:])
	binary.Write(buf, binary.BigEndian, tmpl.Difficulty)
	binary.Write(buf, binary.BigEndian, nonce)
	return buf.Bytes()
}

// SolutionHash computes H = sha256(sha256(serialized header)), the
// double-SHA256 of spec.md §4.6.
func SolutionHash(version uint32, tmpl *BlockTemplate, nonce uint64) [32]byte {
	first := sha256.Sum256(SerializeHeader(version, tmpl, nonce))
	return sha256.Sum256(first[:])
}

// State is the mutable mining subsystem state: current template, stall
// counter, and duplicate-suppression structures. Mutated only inside
// message handlers (spec.md §5, §9).
type State struct {
	mu sync.Mutex

	HeaderVersion uint32
	TargetTimeSec uint64
	Reward        RewardSchedule

	genesisGenerated bool
	current          *BlockTemplate
	lastBlockTsSec   uint64
	stallTicks       int
	recentTimestamps []uint64

	bloomFilter       *bloom.BloomFilter
	processedLRU      *lru.Cache[solutionKey, struct{}]
	processedLinear   map[solutionKey]struct{} // linear confirm set backing the bloom filter

	lastSubmissionByMiner map[string]uint64 // miner_id -> last accepted submission, seconds
}

type solutionKey struct {
	Height uint64
	Nonce  uint64
	Hash   [32]byte
}

// NewState constructs an empty mining state. Genesis must still be created
// via CreateGenesisBlock before templates can be served.
func NewState(headerVersion uint32, targetTimeSec uint64, reward RewardSchedule) *State {
	lruCache, err := lru.New[solutionKey, struct{}](solutionsLRUSize)
	if err != nil {
		panic(err) // fixed positive size; cannot fail
	}
	return &State{
		HeaderVersion:         headerVersion,
		TargetTimeSec:         targetTimeSec,
		Reward:                reward,
		bloomFilter:           bloom.NewWithEstimates(solutionsBloomN, solutionsBloomFPRate),
		processedLRU:          lruCache,
		processedLinear:       make(map[solutionKey]struct{}),
		lastSubmissionByMiner: make(map[string]uint64),
	}
}

// CreateGenesisBlock produces height=1 with prev_hash = 0^32, allowed iff
// genesis has not already been generated and no template is current
// (spec.md §4.6). It takes no caller identity and performs no controller
// check.
func (s *State) CreateGenesisBlock(nowSec uint64) (*BlockTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.genesisGenerated || s.current != nil {
		return nil, errors.New("genesis already generated")
	}
	tmpl := &BlockTemplate{
		Height:       1,
		PrevHash:     [32]byte{},
		TimestampSec: nowSec,
		Difficulty:   minDifficulty,
		Target:       CalculateTarget(minDifficulty),
	}
	s.current = tmpl
	s.genesisGenerated = true
	s.lastBlockTsSec = nowSec
	log.Infof("genesis block created, difficulty=%d", tmpl.Difficulty)
	return tmpl, nil
}

// CurrentBlock returns the active template, if any.
func (s *State) CurrentBlock() (*BlockTemplate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != nil
}

// Difficulty returns the current template's difficulty, or 0 if none.
func (s *State) Difficulty() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return s.current.Difficulty
}

// retarget implements spec.md §4.6's simplified PID retarget: clamp the
// adjustment factor to [0.75, 1.25] per block, floor the result at 5.
func retarget(current uint32, targetTimeSec, actualSec uint64) uint32 {
	if actualSec == 0 {
		if current < minDifficulty {
			return minDifficulty
		}
		return current
	}
	factor := float64(targetTimeSec) / float64(actualSec)
	if factor < retargetFactorFloor {
		factor = retargetFactorFloor
	}
	if factor > retargetFactorCeil {
		factor = retargetFactorCeil
	}
	next := uint32(math.Round(float64(current) * factor))
	if next < minDifficulty {
		next = minDifficulty
	}
	return next
}

// generateNewBlock advances to a new template after an accepted solution,
// per spec.md §4.6 "New template". Caller must hold s.mu.
func (s *State) generateNewBlock(prevHash [32]byte, nowSec uint64) *BlockTemplate {
	actual := nowSec - s.lastBlockTsSec
	nextDifficulty := retarget(s.current.Difficulty, s.TargetTimeSec, actual)
	tmpl := &BlockTemplate{
		Height:       s.current.Height + 1,
		PrevHash:     prevHash,
		TimestampSec: nowSec,
		Difficulty:   nextDifficulty,
		Target:       CalculateTarget(nextDifficulty),
	}
	s.current = tmpl
	s.lastBlockTsSec = nowSec
	s.stallTicks = 0
	return tmpl
}

// Heartbeat applies stall relief: if it has been more than target_time
// since the last accepted block, bump the stall counter; past the
// threshold, cut difficulty by 15% (floored at 5), per spec.md §4.6
// "Heartbeat stall relief".
func (s *State) Heartbeat(nowSec uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	if nowSec-s.lastBlockTsSec <= s.TargetTimeSec {
		return
	}
	s.stallTicks++
	if s.stallTicks < stallThresholdTicks {
		return
	}
	next := uint32(math.Round(float64(s.current.Difficulty) * stallReliefFactor))
	if next < minDifficulty {
		next = minDifficulty
	}
	s.current.Difficulty = next
	s.current.Target = CalculateTarget(next)
	s.stallTicks = 0
	log.Warnf("stall relief applied, difficulty now %d", next)
}

// SubmitRequest is a miner's solution submission (spec.md §6
// "submit_solution"). Principal is reconciled against MinerID via
// identity.Registry before the reward is credited (spec.md §9).
type SubmitRequest struct {
	MinerID   string
	Principal string
	Height    uint64
	Nonce     uint64
	Hash      [32]byte
	CyclesPaid uint64
}

const submissionCycles = 1_000_000_000 // SUBMISSION_CYCLES, spec.md §4.6 step 1

// minerCooldownBaseSec is the per-miner submission cooldown at minDifficulty;
// the effective cooldown scales with current difficulty relative to that
// floor, so submissions throttle down as the network gets harder to solve.
const minerCooldownBaseSec = 1

// cooldownSec derives the current per-miner cooldown from template
// difficulty. Caller must hold s.mu.
func (s *State) cooldownSec() uint64 {
	if s.current == nil {
		return 0
	}
	factor := uint64(s.current.Difficulty) / minDifficulty
	if factor < 1 {
		factor = 1
	}
	return minerCooldownBaseSec * factor
}

// SubmitOutcome is the result of a successful submission: the reward
// credited and the freshly generated next template.
type SubmitOutcome struct {
	Reward   uint64
	NextTmpl *BlockTemplate
}

// SubmitSolution executes spec.md §4.6 "Solution submission" steps 1-8.
func (s *State) SubmitSolution(ctx context.Context, ledgerClient ledgerclient.Client, ident *identity.Registry, rewardTokenID uint32, j *journal.Journal, nowFn func() uint64, req *SubmitRequest) (*SubmitOutcome, error) {
	if req.CyclesPaid < submissionCycles {
		return nil, errors.New("insufficient cycles for submission")
	}
	minerID, err := ident.Resolve(req.Principal, req.MinerID)
	if err != nil {
		return nil, err
	}
	req.MinerID = minerID

	s.mu.Lock()
	if s.current == nil || s.current.Height != req.Height {
		s.mu.Unlock()
		return nil, errors.Errorf("no matching template for height %d", req.Height)
	}
	if !s.canSubmitLocked(req.MinerID, nowFn()) {
		s.mu.Unlock()
		return nil, errors.Errorf("miner %s is in cooldown", req.MinerID)
	}
	tmpl := s.current
	expected := SolutionHash(s.HeaderVersion, tmpl, req.Nonce)
	if expected != req.Hash {
		s.mu.Unlock()
		return nil, errors.New("submitted hash does not match expected hash")
	}
	if cmpBytes(req.Hash, tmpl.Target) > 0 {
		s.mu.Unlock()
		return nil, errors.New("hash does not satisfy target")
	}

	key := solutionKey{Height: req.Height, Nonce: req.Nonce, Hash: req.Hash}
	if s.isDuplicate(key) {
		s.mu.Unlock()
		return nil, errors.Errorf("duplicate block id: #%d", req.Height)
	}
	s.recordSolution(key)
	s.lastSubmissionByMiner[req.MinerID] = nowFn()

	s.recentTimestamps = append(s.recentTimestamps, nowFn())
	if len(s.recentTimestamps) > recentTimestampsCap {
		s.recentTimestamps = s.recentTimestamps[len(s.recentTimestamps)-recentTimestampsCap:]
	}

	reward := s.Reward.CalculateBlockReward(req.Height)
	nextTmpl := s.generateNewBlock(req.Hash, nowFn())
	s.mu.Unlock()

	if reward > 0 {
		if _, err := ledgerClient.Transfer(ctx, rewardTokenID, bignat.FromUint64(reward), ledgerclient.Account{Owner: req.MinerID}, bignat.Zero(), nil, nil); err != nil {
			claim := j.WriteClaim(req.MinerID, rewardTokenID, bignat.FromUint64(reward), "mining reward payout failed: "+err.Error(), nowFn())
			log.Warnf("mining reward for height %d deferred to claim %d", req.Height, claim.ClaimID)
		}
	}

	log.Infof("accepted solution height=%d miner=%s reward=%d", req.Height, req.MinerID, reward)
	return &SubmitOutcome{Reward: reward, NextTmpl: nextTmpl}, nil
}

// isDuplicate implements the bloom-then-linear-confirm dup check of
// spec.md §4.6 step 5. Caller must hold s.mu.
func (s *State) isDuplicate(key solutionKey) bool {
	if _, ok := s.processedLRU.Get(key); ok {
		return true
	}
	data := solutionKeyBytes(key)
	if !s.bloomFilter.Test(data) {
		return false
	}
	_, exists := s.processedLinear[key]
	return exists
}

// recordSolution pushes a newly accepted solution into the bloom filter,
// LRU front, and linear confirm set. Caller must hold s.mu.
func (s *State) recordSolution(key solutionKey) {
	data := solutionKeyBytes(key)
	s.bloomFilter.Add(data)
	s.processedLRU.Add(key, struct{}{})
	s.processedLinear[key] = struct{}{}
}

func solutionKeyBytes(k solutionKey) []byte {
	buf := make([]byte, 8+8+32)
	binary.BigEndian.PutUint64(buf[0:8], k.Height)
	binary.BigEndian.PutUint64(buf[8:16], k.Nonce)
	copy(buf[16:], k.Hash[:])
	return buf
}

// canSubmitLocked reports whether minerID may submit at nowSec: there must
// be an active template, and minerID must be past its difficulty-derived
// cooldown since its last accepted submission. Caller must hold s.mu.
func (s *State) canSubmitLocked(minerID string, nowSec uint64) bool {
	if s.current == nil {
		return false
	}
	last, ok := s.lastSubmissionByMiner[minerID]
	if !ok {
		return true
	}
	return nowSec >= last+s.cooldownSec()
}

// CanSubmitSolution reports spec.md §6's can_submit_solution: advisory on
// the client side, consulting minerID's last accepted submission and the
// current difficulty-derived cooldown, but the canister remains
// authoritative on submit (SubmitSolution re-checks the same condition
// under lock).
func (s *State) CanSubmitSolution(minerID string, nowSec uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canSubmitLocked(minerID, nowSec)
}
