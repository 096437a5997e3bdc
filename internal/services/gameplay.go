package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hintquest/apiserver/internal/scoring"
	"github.com/hintquest/apiserver/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const maxSubmittedAnswerLength = 1024

// HintPreview describes the next hint without consuming it.
type HintPreview struct {
	ChallengeID string `json:"challenge_id"`
	NextHint    int    `json:"next_hint"`
	Cost        int    `json:"cost"`
	HintsUsed   int    `json:"hints_used"`
	Remaining   int    `json:"remaining"`
}

// HintResult is a revealed hint and what it cost.
type HintResult struct {
	ChallengeID string `json:"challenge_id"`
	Number      int    `json:"number"`
	Text        string `json:"text"`
	Cost        int    `json:"cost"`
	Remaining   int    `json:"remaining"`
}

// SubmitResult is the outcome of an answer submission.
type SubmitResult struct {
	Correct  bool                `json:"correct"`
	Progress types.Progress      `json:"progress"`
	Points   int                 `json:"points,omitempty"`
	Reward   *types.RewardRecord `json:"reward,omitempty"`

	// RewardErr is set when the answer was accepted but the reward could not
	// be issued. The completion stands; the player may claim the reward later.
	RewardErr error `json:"-"`
}

// GameplayService orchestrates hints, answers and rewards for players.
type GameplayService struct {
	users      *UserService
	challenges *ChallengeService
	progress   *ProgressService
	rewards    *RewardDispatcher
	calc       *scoring.Calculator
	notifier   Notifier
	logger     *slog.Logger
}

func NewGameplayService(
	users *UserService,
	challenges *ChallengeService,
	progress *ProgressService,
	rewards *RewardDispatcher,
	calc *scoring.Calculator,
	notifier Notifier,
	logger *slog.Logger,
) *GameplayService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GameplayService{
		users:      users,
		challenges: challenges,
		progress:   progress,
		rewards:    rewards,
		calc:       calc,
		notifier:   notifier,
		logger:     logger,
	}
}

// PreviewHint reports the cost of the next hint without spending it.
func (s *GameplayService) PreviewHint(ctx context.Context, userID int, challengeID string) (HintPreview, error) {
	challenge, err := s.challenges.Playable(ctx, challengeID)
	if err != nil {
		return HintPreview{}, err
	}
	progress, err := s.progress.GetOrInit(ctx, userID, challenge.ID)
	if err != nil {
		return HintPreview{}, err
	}
	if progress.Completed {
		return HintPreview{}, ErrAlreadyCompleted
	}
	remaining := len(challenge.Hints) - progress.HintsUsed
	if remaining <= 0 {
		return HintPreview{}, ErrHintsExhausted
	}
	return HintPreview{
		ChallengeID: challenge.ID,
		NextHint:    progress.HintsUsed + 1,
		Cost:        s.calc.NextHintCost(progress.HintsUsed),
		HintsUsed:   progress.HintsUsed,
		Remaining:   remaining,
	}, nil
}

// RequestHint spends and reveals the next hint.
func (s *GameplayService) RequestHint(ctx context.Context, userID int, challengeID string) (HintResult, error) {
	challenge, err := s.challenges.Playable(ctx, challengeID)
	if err != nil {
		return HintResult{}, err
	}
	progress, err := s.progress.ConsumeHint(ctx, userID, challenge.ID, len(challenge.Hints))
	if err != nil {
		return HintResult{}, err
	}
	number := progress.HintsUsed
	return HintResult{
		ChallengeID: challenge.ID,
		Number:      number,
		Text:        challenge.Hints[number-1],
		Cost:        s.calc.HintCost(number - 1),
		Remaining:   len(challenge.Hints) - number,
	}, nil
}

// SubmitAnswer records the attempt, judges it and on success completes the
// challenge, issues the reward and announces the result.
func (s *GameplayService) SubmitAnswer(ctx context.Context, userID int, challengeID, answer string) (SubmitResult, error) {
	if strings.TrimSpace(answer) == "" {
		return SubmitResult{}, invalid("answer", "is required")
	}
	if utf8.RuneCountInString(answer) > maxSubmittedAnswerLength {
		return SubmitResult{}, invalid("answer", "is too long")
	}
	challenge, err := s.challenges.Playable(ctx, challengeID)
	if err != nil {
		return SubmitResult{}, err
	}

	progress, err := s.progress.RecordAttempt(ctx, userID, challenge.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	if !answersMatch(answer, challenge.Answer) {
		return SubmitResult{Correct: false, Progress: progress}, nil
	}

	points, err := s.calc.Points(progress.HintsUsed, challenge.Difficulty)
	if err != nil {
		return SubmitResult{}, invalid("difficulty", err.Error())
	}
	progress, err = s.progress.Complete(ctx, userID, challenge.ID, points)
	if err != nil {
		return SubmitResult{}, err
	}
	result := SubmitResult{Correct: true, Progress: progress, Points: points}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		result.RewardErr = err
		s.logger.Error("completion without user record", "user_id", userID, "challenge_id", challenge.ID, "error", err)
		return result, nil
	}

	record, err := s.rewards.Dispatch(ctx, user, challenge)
	if err != nil {
		result.RewardErr = err
		s.logger.Warn("reward dispatch failed", "user_id", userID, "challenge_id", challenge.ID, "error", err)
	} else {
		result.Reward = &record
	}

	if s.notifier != nil {
		event := types.CompletionEvent{
			UserID:        user.ID,
			ExternalID:    user.ExternalID,
			DisplayName:   user.DisplayName,
			ChallengeID:   challenge.ID,
			ChallengeName: challenge.Name,
			Points:        points,
		}
		if progress.CompletedAt != nil {
			event.CompletedAt = *progress.CompletedAt
		}
		if err := s.notifier.ChallengeCompleted(ctx, event); err != nil {
			s.logger.Warn("completion notification failed", "challenge_id", challenge.ID, "error", err)
		}
	}
	return result, nil
}

// ClaimReward retries reward issuance for a challenge the user completed.
func (s *GameplayService) ClaimReward(ctx context.Context, userID int, challengeID string) (types.RewardRecord, error) {
	progress, err := s.progress.Get(ctx, userID, challengeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return types.RewardRecord{}, invalid("challenge", "not completed yet")
		}
		return types.RewardRecord{}, err
	}
	if !progress.Completed {
		return types.RewardRecord{}, invalid("challenge", "not completed yet")
	}
	challenge, err := s.challenges.Playable(ctx, challengeID)
	if err != nil {
		return types.RewardRecord{}, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return types.RewardRecord{}, err
	}
	return s.rewards.Dispatch(ctx, user, challenge)
}

// answersMatch compares answers ignoring case, width variants and whitespace.
func answersMatch(given, expected string) bool {
	return normalizeAnswer(given) == normalizeAnswer(expected)
}

// Casers are stateful, so each call builds its own.
func normalizeAnswer(answer string) string {
	folded := cases.Fold().String(norm.NFKC.String(answer))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded)
}
