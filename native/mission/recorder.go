package mission

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"workmesh/core/events"
)

// MaxHistoryPage bounds range reads of a participant's mission history.
const MaxHistoryPage = 50

var (
	// ErrRecorderNotReady marks recorder use before a storage backend is
	// attached.
	ErrRecorderNotReady = errors.New("mission: recorder not initialised")
)

// storage abstracts the subset of state manager functionality required by the
// mission recorder.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Recorder appends immutable mission records to both participants' histories
// and maintains their reputation counters incrementally. Histories are never
// scanned to derive the counters; the reliability rate is computed from the
// two stored integers alone.
type Recorder struct {
	store   storage
	emitter events.Emitter
	nowFn   func() int64
}

// NewRecorder constructs a recorder bound to the provided storage backend.
func NewRecorder(store storage) *Recorder {
	return &Recorder{
		store:   store,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Recorder) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the wall clock, primarily for deterministic tests.
func (r *Recorder) SetNowFunc(now func() int64) {
	if r == nil {
		return
	}
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

func (r *Recorder) now() int64 {
	if r == nil || r.nowFn == nil {
		return time.Now().Unix()
	}
	return r.nowFn()
}

// Record appends the mission to the histories of both participants and bumps
// their counters. Invoked once per terminal escrow transition.
func (r *Recorder) Record(m *Mission) error {
	if r == nil || r.store == nil {
		return ErrRecorderNotReady
	}
	sanitized, err := SanitizeMission(m)
	if err != nil {
		return err
	}
	if sanitized.CompletedAt == 0 {
		sanitized.CompletedAt = r.now()
	}
	for _, participant := range [][20]byte{sanitized.Client, sanitized.Provider} {
		if err := r.appendHistory(participant, sanitized); err != nil {
			return err
		}
		if err := r.bumpStats(participant, sanitized.Disputed); err != nil {
			return err
		}
	}
	r.emitter.Emit(Recorded{
		OfferID:  sanitized.OfferID,
		Client:   sanitized.Client,
		Provider: sanitized.Provider,
		Disputed: sanitized.Disputed,
	})
	return nil
}

func (r *Recorder) appendHistory(addr [20]byte, m *Mission) error {
	var count uint64
	if _, err := r.store.KVGet(historyCountKey(addr), &count); err != nil {
		return err
	}
	next := count + 1
	if err := r.store.KVPut(historyEntryKey(addr, next), toStored(m)); err != nil {
		return err
	}
	return r.store.KVPut(historyCountKey(addr), next)
}

func (r *Recorder) bumpStats(addr [20]byte, disputed bool) error {
	var stored storedStats
	if _, err := r.store.KVGet(statsKey(addr), &stored); err != nil {
		return err
	}
	stored.Missions++
	if disputed {
		stored.Disputed++
	}
	return r.store.KVPut(statsKey(addr), &stored)
}

// History returns up to limit missions from the participant's history
// starting after the given offset, oldest first. Page sizes are clamped to
// MaxHistoryPage.
func (r *Recorder) History(addr [20]byte, offset, limit uint64) ([]*Mission, error) {
	if r == nil || r.store == nil {
		return nil, ErrRecorderNotReady
	}
	if limit == 0 || limit > MaxHistoryPage {
		limit = MaxHistoryPage
	}
	var count uint64
	if _, err := r.store.KVGet(historyCountKey(addr), &count); err != nil {
		return nil, err
	}
	missions := make([]*Mission, 0, limit)
	for i := uint64(0); i < limit; i++ {
		seq := offset + i + 1
		if seq > count {
			break
		}
		var stored storedMission
		ok, err := r.store.KVGet(historyEntryKey(addr, seq), &stored)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("mission: history entry %d missing for %x", seq, addr)
		}
		missions = append(missions, fromStored(&stored))
	}
	return missions, nil
}

// HistoryLength returns the number of missions in the participant's history.
func (r *Recorder) HistoryLength(addr [20]byte) (uint64, error) {
	if r == nil || r.store == nil {
		return 0, ErrRecorderNotReady
	}
	var count uint64
	if _, err := r.store.KVGet(historyCountKey(addr), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Stats returns the participant's reputation counters.
func (r *Recorder) Stats(addr [20]byte) (Stats, error) {
	if r == nil || r.store == nil {
		return Stats{}, ErrRecorderNotReady
	}
	var stored storedStats
	if _, err := r.store.KVGet(statsKey(addr), &stored); err != nil {
		return Stats{}, err
	}
	return Stats{Missions: stored.Missions, Disputed: stored.Disputed}, nil
}

func historyCountKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("mission/count/%x", addr))
}

func historyEntryKey(addr [20]byte, seq uint64) []byte {
	return []byte(fmt.Sprintf("mission/history/%x/%d", addr, seq))
}

func statsKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("mission/stats/%x", addr))
}

type storedMission struct {
	OfferID     uint64
	Client      [20]byte
	Provider    [20]byte
	Asset       string
	Amount      *big.Int
	Disputed    bool
	CompletedAt uint64
}

type storedStats struct {
	Missions uint64
	Disputed uint64
}

func toStored(m *Mission) *storedMission {
	stored := &storedMission{
		OfferID:  m.OfferID,
		Client:   m.Client,
		Provider: m.Provider,
		Asset:    m.Asset,
		Amount:   m.Amount,
		Disputed: m.Disputed,
	}
	if m.CompletedAt > 0 {
		stored.CompletedAt = uint64(m.CompletedAt)
	}
	return stored
}

func fromStored(stored *storedMission) *Mission {
	m := &Mission{
		OfferID:     stored.OfferID,
		Client:      stored.Client,
		Provider:    stored.Provider,
		Asset:       stored.Asset,
		Amount:      big.NewInt(0),
		Disputed:    stored.Disputed,
		CompletedAt: int64(stored.CompletedAt),
	}
	if stored.Amount != nil {
		m.Amount = new(big.Int).Set(stored.Amount)
	}
	return m
}
