package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hintquest/apiserver/internal/cache"
	"github.com/hintquest/apiserver/types"
)

const (
	approvedIndexKey = "challenges:approved"
	indexPageSize    = 100
	maxSuggestions   = 25
	defaultIndexTTL  = 10 * time.Minute
)

// ChallengeLister is the read path the index needs from the challenge store.
type ChallengeLister interface {
	List(ctx context.Context, filter types.ChallengeFilter) ([]types.Challenge, int, error)
}

// ChallengeIndex is a read-through cache of approved challenge summaries.
// It backs player listings and autocomplete and is rebuilt after every
// mutation that may change the approved set.
type ChallengeIndex struct {
	repo   ChallengeLister
	cache  cache.Backend
	ttl    time.Duration
	logger *slog.Logger
}

// NewChallengeIndex constructs an index over repo. A nil backend falls back
// to an in-process cache.
func NewChallengeIndex(repo ChallengeLister, backend cache.Backend, ttl time.Duration, logger *slog.Logger) *ChallengeIndex {
	if backend == nil {
		backend = cache.NewMemoryClient()
	}
	if ttl <= 0 {
		ttl = defaultIndexTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChallengeIndex{repo: repo, cache: backend, ttl: ttl, logger: logger}
}

// Approved returns every approved challenge, ordered by difficulty then name.
func (i *ChallengeIndex) Approved(ctx context.Context) ([]types.ChallengeSummary, error) {
	raw, err := i.cache.Get(ctx, approvedIndexKey)
	if err == nil {
		var summaries []types.ChallengeSummary
		if err := json.Unmarshal(raw, &summaries); err == nil {
			return summaries, nil
		}
		i.logger.Warn("discarding unreadable challenge index")
	} else if !errors.Is(err, cache.ErrMiss) {
		i.logger.Warn("challenge index cache read failed", "error", err)
	}
	return i.Rebuild(ctx)
}

// Rebuild reloads the approved set from the store and replaces the cached copy.
func (i *ChallengeIndex) Rebuild(ctx context.Context) ([]types.ChallengeSummary, error) {
	summaries := make([]types.ChallengeSummary, 0)
	filter := types.ChallengeFilter{
		States: []types.ChallengeState{types.StateApproved},
		Limit:  indexPageSize,
	}
	for {
		page, total, err := i.repo.List(ctx, filter)
		if err != nil {
			return nil, translate(err)
		}
		for _, challenge := range page {
			summaries = append(summaries, challenge.Summary())
		}
		filter.Offset += len(page)
		if len(page) == 0 || filter.Offset >= total {
			break
		}
	}

	raw, err := json.Marshal(summaries)
	if err != nil {
		return nil, err
	}
	if err := i.cache.Set(ctx, approvedIndexKey, raw, i.ttl); err != nil {
		i.logger.Warn("challenge index cache write failed", "error", err)
	}
	return summaries, nil
}

// Suggest returns up to 25 approved challenges whose name or id matches query,
// prefix matches first.
func (i *ChallengeIndex) Suggest(ctx context.Context, query string) ([]types.ChallengeSummary, error) {
	summaries, err := i.Approved(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))

	type match struct {
		summary types.ChallengeSummary
		prefix  bool
	}
	matches := make([]match, 0, maxSuggestions)
	for _, summary := range summaries {
		name := strings.ToLower(summary.Name)
		switch {
		case query == "" || strings.HasPrefix(name, query) || strings.HasPrefix(summary.ID, query):
			matches = append(matches, match{summary: summary, prefix: true})
		case strings.Contains(name, query):
			matches = append(matches, match{summary: summary})
		}
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].prefix && !matches[b].prefix
	})

	if len(matches) > maxSuggestions {
		matches = matches[:maxSuggestions]
	}
	out := make([]types.ChallengeSummary, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.summary)
	}
	return out, nil
}

// refresh rebuilds the index after a mutation. Failures are logged only.
func (i *ChallengeIndex) refresh(ctx context.Context) {
	if i == nil {
		return
	}
	if _, err := i.Rebuild(ctx); err != nil {
		i.logger.Warn("challenge index rebuild failed", "error", err)
	}
}
