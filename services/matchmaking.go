// services/matchmaking.go
package services

import (
	"sort"
	"time"

	"cuearena/models"

	"github.com/rs/zerolog"
)

type MatchmakingConfig struct {
	InitialTolerance   int
	ToleranceStep      int
	ExpansionInterval  time.Duration
	MaxTolerance       int
	MaxWait            time.Duration
	BaseWaitEstimate   time.Duration
	MaxMatchesPerSweep int // <= 0 means no cap
}

func DefaultMatchmakingConfig() MatchmakingConfig {
	return MatchmakingConfig{
		InitialTolerance:   100,
		ToleranceStep:      50,
		ExpansionInterval:  10 * time.Second,
		MaxTolerance:       400,
		MaxWait:            60 * time.Second,
		BaseWaitEstimate:   15 * time.Second,
		MaxMatchesPerSweep: 1,
	}
}

// SessionFactory creates the session for a pairing and answers whether an identity is
// already seated somewhere.
type SessionFactory interface {
	CreateMatched(host, guest models.Player, wager int64, currency string, now time.Time) (*MatchSession, error)
	InSession(playerID string) bool
}

type MatchResult struct {
	Tier    models.Tier
	Host    models.QueueEntry
	Guest   models.QueueEntry
	Session *MatchSession
}

type EnqueueResult struct {
	Tier          models.Tier
	Match         *MatchResult
	Position      int
	EstimatedWait time.Duration
}

type SweepResult struct {
	Matches  []MatchResult
	Timeouts []models.QueueEntry
}

// MatchmakingQueue keeps one FIFO per tier. An identity is queued in at most one tier.
type MatchmakingQueue struct {
	cfg       MatchmakingConfig
	tiers     map[string]models.Tier
	tierOrder []string
	queues    map[string][]models.QueueEntry
	members   map[string]string
	sessions  SessionFactory
	log       zerolog.Logger
}

func NewMatchmakingQueue(cfg MatchmakingConfig, tiers []models.Tier, sessions SessionFactory, log zerolog.Logger) *MatchmakingQueue {
	q := &MatchmakingQueue{
		cfg:      cfg,
		tiers:    make(map[string]models.Tier, len(tiers)),
		queues:   make(map[string][]models.QueueEntry, len(tiers)),
		members:  make(map[string]string),
		sessions: sessions,
		log:      log.With().Str("component", "matchmaking").Logger(),
	}
	for _, t := range tiers {
		q.tiers[t.Name] = t
		q.tierOrder = append(q.tierOrder, t.Name)
	}
	sort.Strings(q.tierOrder)
	return q
}

// Tolerance is the rating window of an entry that has waited for waited.
func (q *MatchmakingQueue) Tolerance(waited time.Duration) int {
	tol := q.cfg.InitialTolerance
	if q.cfg.ExpansionInterval > 0 && waited > 0 {
		tol += int(waited/q.cfg.ExpansionInterval) * q.cfg.ToleranceStep
	}
	if tol > q.cfg.MaxTolerance {
		tol = q.cfg.MaxTolerance
	}
	return tol
}

func (q *MatchmakingQueue) Tier(name string) (models.Tier, bool) {
	t, ok := q.tiers[name]
	return t, ok
}

// AddPlayer queues p in tier and immediately tries to pair it.
func (q *MatchmakingQueue) AddPlayer(p models.Player, tierName string, now time.Time) (EnqueueResult, error) {
	tier, ok := q.tiers[tierName]
	if !ok {
		return EnqueueResult{}, rejectf(ErrInvalidTier, "%q", tierName)
	}
	if _, queued := q.members[p.ID]; queued {
		return EnqueueResult{}, ErrAlreadyQueued
	}
	if q.sessions.InSession(p.ID) {
		return EnqueueResult{}, ErrAlreadyInSession
	}
	if tier.Stake > 0 && p.Currency != tier.Currency {
		return EnqueueResult{}, rejectf(ErrInsufficientBalance, "%s stakes %s, account holds %s", tier.Name, tier.Currency, p.Currency)
	}
	if p.Balance < tier.Stake {
		return EnqueueResult{}, rejectf(ErrInsufficientBalance, "balance %d below %s stake %d", p.Balance, tier.Name, tier.Stake)
	}

	q.queues[tier.Name] = append(q.queues[tier.Name], models.QueueEntry{Player: p, Tier: tier.Name, EnqueuedAt: now})
	q.members[p.ID] = tier.Name
	q.log.Debug().Str("player_id", p.ID).Str("tier", tier.Name).Int("rating", p.Rating).Msg("player queued")

	res := EnqueueResult{Tier: tier}
	match, err := q.tryMatch(tier.Name, len(q.queues[tier.Name])-1, now)
	if err != nil {
		q.log.Error().Err(err).Str("player_id", p.ID).Msg("failed to create matched session")
	}
	if match != nil {
		res.Match = match
		return res, nil
	}

	res.Position = q.Position(p.ID)
	res.EstimatedWait = time.Duration(res.Position) * q.cfg.BaseWaitEstimate
	if res.EstimatedWait > q.cfg.MaxWait {
		res.EstimatedWait = q.cfg.MaxWait
	}
	return res, nil
}

// tryMatch pairs the entry at idx with the closest-rated entry inside the requester's
// tolerance. Earlier entries win ties because the queue is ordered by arrival.
func (q *MatchmakingQueue) tryMatch(tierName string, idx int, now time.Time) (*MatchResult, error) {
	queue := q.queues[tierName]
	requester := queue[idx]
	tol := q.Tolerance(now.Sub(requester.EnqueuedAt))

	best, bestDiff := -1, 0
	for j, c := range queue {
		if j == idx {
			continue
		}
		diff := requester.Player.Rating - c.Player.Rating
		if diff < 0 {
			diff = -diff
		}
		if diff > tol {
			continue
		}
		if best == -1 || diff < bestDiff {
			best, bestDiff = j, diff
		}
	}
	if best == -1 {
		return nil, nil
	}

	hostIdx, guestIdx := idx, best
	if guestIdx < hostIdx {
		hostIdx, guestIdx = guestIdx, hostIdx
	}
	host, guest := queue[hostIdx], queue[guestIdx]
	tier := q.tiers[tierName]

	s, err := q.sessions.CreateMatched(host.Player, guest.Player, tier.Stake, tier.Currency, now)
	if err != nil {
		return nil, err
	}
	q.remove(host.Player.ID)
	q.remove(guest.Player.ID)

	q.log.Info().
		Str("tier", tierName).
		Str("host", host.Player.ID).
		Str("guest", guest.Player.ID).
		Int("rating_diff", bestDiff).
		Int("tolerance", tol).
		Str("session_id", s.ID).
		Msg("match found")
	return &MatchResult{Tier: tier, Host: host, Guest: guest, Session: s}, nil
}

func (q *MatchmakingQueue) remove(playerID string) (models.QueueEntry, bool) {
	tierName, ok := q.members[playerID]
	if !ok {
		return models.QueueEntry{}, false
	}
	delete(q.members, playerID)
	queue := q.queues[tierName]
	for i, e := range queue {
		if e.Player.ID == playerID {
			q.queues[tierName] = append(queue[:i:i], queue[i+1:]...)
			return e, true
		}
	}
	return models.QueueEntry{}, false
}

// RemovePlayer dequeues the identity. Removing an identity that is not queued is a no-op.
func (q *MatchmakingQueue) RemovePlayer(playerID string) bool {
	_, ok := q.remove(playerID)
	return ok
}

// Sweep evicts entries past MaxWait and retries pairing the rest oldest first, now that
// their tolerance has widened.
func (q *MatchmakingQueue) Sweep(now time.Time) SweepResult {
	var res SweepResult
	for _, name := range q.tierOrder {
		kept := q.queues[name][:0:0]
		for _, e := range q.queues[name] {
			if now.Sub(e.EnqueuedAt) > q.cfg.MaxWait {
				delete(q.members, e.Player.ID)
				res.Timeouts = append(res.Timeouts, e)
				continue
			}
			kept = append(kept, e)
		}
		q.queues[name] = kept

		made := 0
		for i := 0; i < len(q.queues[name]); {
			if q.cfg.MaxMatchesPerSweep > 0 && made >= q.cfg.MaxMatchesPerSweep {
				break
			}
			m, err := q.tryMatch(name, i, now)
			if err != nil {
				q.log.Error().Err(err).Str("tier", name).Msg("failed to create matched session")
			}
			if m == nil {
				i++
				continue
			}
			res.Matches = append(res.Matches, *m)
			made++
			i = 0
		}
	}
	return res
}

// Position is the 1-based place of the identity in its tier, or 0.
func (q *MatchmakingQueue) Position(playerID string) int {
	tierName, ok := q.members[playerID]
	if !ok {
		return 0
	}
	for i, e := range q.queues[tierName] {
		if e.Player.ID == playerID {
			return i + 1
		}
	}
	return 0
}

func (q *MatchmakingQueue) Contains(playerID string) bool {
	_, ok := q.members[playerID]
	return ok
}

// Entry returns the queued record of the identity.
func (q *MatchmakingQueue) Entry(playerID string) (models.QueueEntry, bool) {
	pos := q.Position(playerID)
	if pos == 0 {
		return models.QueueEntry{}, false
	}
	return q.queues[q.members[playerID]][pos-1], true
}

func (q *MatchmakingQueue) Counts() map[string]int {
	counts := make(map[string]int, len(q.tierOrder))
	for _, name := range q.tierOrder {
		counts[name] = len(q.queues[name])
	}
	return counts
}

func (q *MatchmakingQueue) Len() int {
	return len(q.members)
}
