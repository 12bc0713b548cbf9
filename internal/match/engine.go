// Package match scores staged bank records against posted ledger entries.
package match

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/ledger"
)

// Config tunes the candidate search.
type Config struct {
	// WindowDays is how far from the staged value date ledger entries are
	// considered.
	WindowDays int
	// MinScore is the floor below which candidates are discarded.
	MinScore float64
}

// DefaultConfig returns the tuning used by the CLI.
func DefaultConfig() Config {
	return Config{WindowDays: 7, MinScore: 0.5}
}

// Scoring weights. Amount equality is a precondition, not a weight: an entry
// whose magnitude differs from the staged record is never a candidate.
const (
	amountWeight   = 0.4
	signAgreeBonus = 0.1
	dateWeight     = 0.3
	datePenalty    = 0.05
	nameWeight     = 0.2
	invoiceBonus   = 0.05
)

// Engine finds and scores ledger candidates for staged transactions.
type Engine struct {
	ledger ledger.Ledger
	cfg    Config
	logger zerolog.Logger
}

// New creates a matching engine.
func New(l ledger.Ledger, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultConfig().WindowDays
	}
	return &Engine{
		ledger: l,
		cfg:    cfg,
		logger: logger.With().Str("component", "match").Logger(),
	}
}

// FindCandidates returns scored ledger candidates for the staged record,
// best first. Candidates are ephemeral: they are recomputed on every call and
// never persisted. All candidates above the floor are returned, including
// ties, so the caller can surface ambiguity instead of guessing.
func (e *Engine) FindCandidates(ctx context.Context, txn *domain.Transaction, ledgerAccountID string) ([]domain.MatchCandidate, error) {
	if txn == nil {
		return nil, &domain.InvalidArgumentError{Message: "transaction cannot be nil"}
	}
	if ledgerAccountID == "" {
		return nil, &domain.InvalidArgumentError{Message: "ledger account id cannot be empty"}
	}

	entries, err := e.ledger.FindEntriesNear(ctx, ledgerAccountID, txn.ValueDate, e.cfg.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ledger entries for %s: %w", ledgerAccountID, err)
	}

	var candidates []domain.MatchCandidate
	for _, entry := range entries {
		c, ok := e.score(txn, entry)
		if !ok || c.Score < e.cfg.MinScore {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].DateDeltaDays != candidates[j].DateDeltaDays {
			return candidates[i].DateDeltaDays < candidates[j].DateDeltaDays
		}
		return candidates[i].Ledger.TransNo < candidates[j].Ledger.TransNo
	})

	e.logger.Debug().Int64("transaction", txn.ID).Str("account", ledgerAccountID).
		Int("entries", len(entries)).Int("candidates", len(candidates)).
		Msg("candidate search complete")
	return candidates, nil
}

// score rates one ledger entry against the staged record. The bool result is
// false when the entry is not a candidate at all.
func (e *Engine) score(txn *domain.Transaction, entry ledger.Entry) (domain.MatchCandidate, bool) {
	delta := math.Abs(entry.Amount) - txn.Amount
	if !domain.SameAmount(math.Abs(entry.Amount), txn.Amount) {
		return domain.MatchCandidate{}, false
	}

	score := amountWeight

	// An entry posted with the same sign as the staged record is a stronger
	// candidate, but an opposite sign still matches: the staged direction
	// flag may be the thing that is wrong.
	if (entry.Amount < 0) == (txn.Direction == domain.DirectionDebit) {
		score += signAgreeBonus
	}

	days := dateDeltaDays(entry, txn)
	score += math.Max(0, dateWeight-datePenalty*float64(days))

	dist := nameDistance(txn.Merchant, entry.Description)
	score += nameScore(txn.Merchant, entry.Description, dist)

	if entry.IsInvoice {
		score += invoiceBonus
	}

	return domain.MatchCandidate{
		Ledger:        entry.Ref,
		Score:         score,
		AmountDelta:   delta,
		DateDeltaDays: days,
		NameDistance:  dist,
		IsInvoice:     entry.IsInvoice,
	}, true
}

func dateDeltaDays(entry ledger.Entry, txn *domain.Transaction) int {
	days := int(entry.Date.Sub(txn.ValueDate).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// nameScore converts an edit distance to a weighted similarity. Missing text
// on either side contributes nothing rather than penalizing the candidate.
func nameScore(merchant, description string, dist int) float64 {
	merchant = strings.ToLower(strings.TrimSpace(merchant))
	description = strings.ToLower(strings.TrimSpace(description))
	if merchant == "" || description == "" {
		return 0
	}
	longest := len(merchant)
	if len(description) > longest {
		longest = len(description)
	}
	similarity := 1.0 - float64(dist)/float64(longest)
	if similarity < 0 {
		similarity = 0
	}
	return nameWeight * similarity
}

// nameDistance is the Levenshtein edit distance between the lowercased
// strings, using the two-row formulation.
func nameDistance(a, b string) int {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
