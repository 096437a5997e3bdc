package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"github.com/hintquest/apiserver/types"
)

// Content limits for challenge fields, counted in runes.
const (
	maxNameLength        = 100
	maxDescriptionLength = 4000
	maxAnswerLength      = 256
	maxHints             = 10
	maxHintLength        = 1024
	maxRewardTextLength  = 4000
	maxSlugLength        = 40
)

// ChallengeRepository defines persistence operations for challenges.
type ChallengeRepository interface {
	List(ctx context.Context, filter types.ChallengeFilter) ([]types.Challenge, int, error)
	Get(ctx context.Context, id string) (types.Challenge, error)
	Create(ctx context.Context, challenge types.Challenge) (types.Challenge, error)
	Update(ctx context.Context, challenge types.Challenge) (types.Challenge, error)
	UpsertAll(ctx context.Context, challenges []types.Challenge) ([]types.Challenge, error)
	Delete(ctx context.Context, id string) error
}

// ChallengeDraft carries the author-supplied fields of a new challenge.
type ChallengeDraft struct {
	Name        string
	Description string
	AuthorName  string
	Answer      string
	Difficulty  int
	Reward      types.Reward
	Hints       []string
}

// ChallengePatch carries a partial edit. Nil fields are left unchanged.
type ChallengePatch struct {
	Name        *string
	Description *string
	AuthorName  *string
	Answer      *string
	Difficulty  *int
	Hints       *[]string
	Reward      types.Reward
}

// TouchesGameplay reports whether the patch edits the answer, difficulty or hints.
func (p ChallengePatch) TouchesGameplay() bool {
	return p.Answer != nil || p.Difficulty != nil || p.Hints != nil
}

func (p ChallengePatch) apply(c *types.Challenge) {
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		c.Description = strings.TrimSpace(*p.Description)
	}
	if p.AuthorName != nil {
		c.AuthorName = strings.TrimSpace(*p.AuthorName)
	}
	if p.Answer != nil {
		c.Answer = strings.TrimSpace(*p.Answer)
	}
	if p.Difficulty != nil {
		c.Difficulty = *p.Difficulty
	}
	if p.Hints != nil {
		c.Hints = cleanHints(*p.Hints)
	}
	if p.Reward != nil {
		c.Reward = p.Reward
	}
}

// ChallengeService encapsulates challenge authoring and listing use-cases.
type ChallengeService struct {
	repo      ChallengeRepository
	approvals *ApprovalService
	index     *ChallengeIndex
	logger    *slog.Logger
	now       func() time.Time
}

func NewChallengeService(repo ChallengeRepository, approvals *ApprovalService, index *ChallengeIndex, logger *slog.Logger) *ChallengeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChallengeService{
		repo:      repo,
		approvals: approvals,
		index:     index,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new pending challenge owned by actor.
func (s *ChallengeService) Create(ctx context.Context, actor types.User, draft ChallengeDraft) (types.Challenge, error) {
	if !actor.CanAuthor() {
		return types.Challenge{}, ErrPermissionDenied
	}

	challenge := types.Challenge{
		Name:            strings.TrimSpace(draft.Name),
		Description:     strings.TrimSpace(draft.Description),
		AuthorName:      strings.TrimSpace(draft.AuthorName),
		OwnerExternalID: actor.ExternalID,
		Answer:          strings.TrimSpace(draft.Answer),
		Difficulty:      draft.Difficulty,
		Reward:          draft.Reward,
		Hints:           cleanHints(draft.Hints),
		State:           types.StatePending,
	}
	if challenge.AuthorName == "" {
		challenge.AuthorName = actor.DisplayName
	}
	if err := validateChallenge(challenge); err != nil {
		return types.Challenge{}, err
	}
	challenge.ID = NewChallengeID(challenge.Name, challenge.OwnerExternalID, s.now())

	created, err := s.repo.Create(ctx, challenge)
	if err != nil {
		return types.Challenge{}, translate(err)
	}
	s.logger.Info("challenge created", "challenge_id", created.ID, "owner", created.OwnerExternalID)
	return created, nil
}

// Get returns a challenge. Players only see approved challenges; owners and
// admins see their challenges in any state.
func (s *ChallengeService) Get(ctx context.Context, actor types.User, id string) (types.Challenge, error) {
	challenge, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Challenge{}, translate(err)
	}
	if !challenge.Visible() && !canManage(actor, challenge) {
		return types.Challenge{}, ErrNotFound
	}
	return challenge, nil
}

// Playable returns an approved challenge or ErrNotFound.
func (s *ChallengeService) Playable(ctx context.Context, id string) (types.Challenge, error) {
	challenge, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Challenge{}, translate(err)
	}
	if !challenge.Visible() {
		return types.Challenge{}, ErrNotFound
	}
	return challenge, nil
}

// ListApproved returns the player-facing projection of approved challenges.
func (s *ChallengeService) ListApproved(ctx context.Context, offset, limit int) ([]types.ChallengeSummary, int, error) {
	summaries, err := s.index.Approved(ctx)
	if err != nil {
		return nil, 0, err
	}
	offset, limit = clampPage(offset, limit)
	total := len(summaries)
	if offset >= total {
		return []types.ChallengeSummary{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return summaries[offset:end], total, nil
}

// ListOwned returns challenges owned by actor in every state.
func (s *ChallengeService) ListOwned(ctx context.Context, actor types.User, offset, limit int) ([]types.Challenge, int, error) {
	offset, limit = clampPage(offset, limit)
	list, total, err := s.repo.List(ctx, types.ChallengeFilter{
		OwnerExternalID: actor.ExternalID,
		Offset:          offset,
		Limit:           limit,
	})
	return list, total, translate(err)
}

// ListAll returns challenges in the given states, or all of them. Admin only.
func (s *ChallengeService) ListAll(ctx context.Context, actor types.User, states []types.ChallengeState, offset, limit int) ([]types.Challenge, int, error) {
	if !actor.IsAdmin() {
		return nil, 0, ErrPermissionDenied
	}
	for _, state := range states {
		if !state.Valid() {
			return nil, 0, invalid("state", fmt.Sprintf("unknown state %q", state))
		}
	}
	offset, limit = clampPage(offset, limit)
	list, total, err := s.repo.List(ctx, types.ChallengeFilter{
		States: states,
		Offset: offset,
		Limit:  limit,
	})
	return list, total, translate(err)
}

// Update applies patch as owner or admin. Edits to the answer, difficulty or
// hints of an approved or disabled challenge go through
// ReviseApprovedChallenge, so a disabled challenge cannot be re-enabled with
// unreviewed gameplay changes.
func (s *ChallengeService) Update(ctx context.Context, actor types.User, id string, patch ChallengePatch) (types.Challenge, error) {
	challenge, err := s.managed(ctx, actor, id)
	if err != nil {
		return types.Challenge{}, err
	}
	if challenge.HoldsApproval() && patch.TouchesGameplay() {
		return s.revise(ctx, actor, challenge, patch)
	}

	patch.apply(&challenge)
	if err := validateChallenge(challenge); err != nil {
		return types.Challenge{}, err
	}
	if challenge.State == types.StateApproved && (challenge.Reward == nil || !challenge.Reward.Configured()) {
		return types.Challenge{}, invalid("reward", "an approved challenge needs a configured reward")
	}

	updated, err := s.repo.Update(ctx, challenge)
	if err != nil {
		return types.Challenge{}, translate(err)
	}
	if updated.State == types.StateApproved {
		s.index.refresh(ctx)
	}
	return updated, nil
}

// ReviseApprovedChallenge edits core gameplay fields of an approved or
// disabled challenge and returns it to pending, dropping the prior approval.
func (s *ChallengeService) ReviseApprovedChallenge(ctx context.Context, actor types.User, id string, patch ChallengePatch) (types.Challenge, error) {
	challenge, err := s.managed(ctx, actor, id)
	if err != nil {
		return types.Challenge{}, err
	}
	return s.revise(ctx, actor, challenge, patch)
}

func (s *ChallengeService) revise(ctx context.Context, actor types.User, challenge types.Challenge, patch ChallengePatch) (types.Challenge, error) {
	if !challenge.HoldsApproval() {
		return types.Challenge{}, fmt.Errorf("%w: only approved or disabled challenges are revised", ErrInvalidTransition)
	}
	patch.apply(&challenge)
	if err := validateChallenge(challenge); err != nil {
		return types.Challenge{}, err
	}
	return s.approvals.revise(ctx, actor, challenge)
}

// Remove hard-deletes a challenge together with its progress and rewards.
func (s *ChallengeService) Remove(ctx context.Context, actor types.User, id string) error {
	challenge, err := s.managed(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return translate(err)
	}
	s.logger.Info("challenge removed", "challenge_id", id, "actor", actor.ExternalID)
	if challenge.State == types.StateApproved {
		s.index.refresh(ctx)
	}
	return nil
}

// managed loads a challenge the actor may edit. Challenges a player may not
// see are reported as missing rather than forbidden.
func (s *ChallengeService) managed(ctx context.Context, actor types.User, id string) (types.Challenge, error) {
	challenge, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Challenge{}, translate(err)
	}
	if !canManage(actor, challenge) {
		if !challenge.Visible() {
			return types.Challenge{}, ErrNotFound
		}
		return types.Challenge{}, ErrPermissionDenied
	}
	return challenge, nil
}

func canManage(actor types.User, challenge types.Challenge) bool {
	return actor.IsAdmin() || (actor.ExternalID != "" && actor.ExternalID == challenge.OwnerExternalID)
}

// NewChallengeID derives an id from the name, a short hash of the owner and
// the creation instant in base 36.
func NewChallengeID(name, owner string, at time.Time) string {
	return nameSlug(name) + "-" + ownerHash(owner) + "-" + strconv.FormatInt(at.UnixNano(), 36)
}

// nameSlug is the id prefix derived from a challenge name, capped at
// maxSlugLength.
func nameSlug(name string) string {
	base := slug.Make(name)
	if len(base) > maxSlugLength {
		base = strings.Trim(base[:maxSlugLength], "-")
	}
	if base == "" {
		base = "challenge"
	}
	return base
}

func ownerHash(owner string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(owner))
	return strconv.FormatUint(uint64(h.Sum32()), 36)
}

func validateChallenge(c types.Challenge) error {
	switch {
	case c.Name == "":
		return invalid("name", "is required")
	case utf8.RuneCountInString(c.Name) > maxNameLength:
		return invalid("name", "is too long")
	case c.Description == "":
		return invalid("description", "is required")
	case utf8.RuneCountInString(c.Description) > maxDescriptionLength:
		return invalid("description", "is too long")
	case c.Answer == "":
		return invalid("answer", "is required")
	case utf8.RuneCountInString(c.Answer) > maxAnswerLength:
		return invalid("answer", "is too long")
	case utf8.RuneCountInString(c.AuthorName) > maxNameLength:
		return invalid("author_name", "is too long")
	case c.Difficulty < 1 || c.Difficulty > 4:
		return invalid("difficulty", "must be between 1 and 4")
	case len(c.Hints) > maxHints:
		return invalid("hints", fmt.Sprintf("at most %d hints are allowed", maxHints))
	}
	for _, hint := range c.Hints {
		if utf8.RuneCountInString(hint) > maxHintLength {
			return invalid("hints", "hint is too long")
		}
	}
	if text, ok := c.Reward.(types.TextReward); ok && utf8.RuneCountInString(text.Body) > maxRewardTextLength {
		return invalid("reward", "reward text is too long")
	}
	return nil
}

// cleanHints trims hints and drops blank ones, preserving order.
func cleanHints(hints []string) []string {
	out := make([]string, 0, len(hints))
	for _, hint := range hints {
		if hint = strings.TrimSpace(hint); hint != "" {
			out = append(out, hint)
		}
	}
	return out
}

func clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return offset, limit
}
