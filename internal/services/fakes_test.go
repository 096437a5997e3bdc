package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hintquest/apiserver/internal/scoring"
	"github.com/hintquest/apiserver/internal/store"
	"github.com/hintquest/apiserver/types"
)

type fakeUsers struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[int]types.User)}
}

func (f *fakeUsers) GetByID(_ context.Context, id int) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUsers) GetByExternalID(_ context.Context, externalID string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.ExternalID == externalID {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUsers) Create(_ context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.ExternalID == user.ExternalID || (user.Email != "" && existing.Email == user.Email) {
			return types.User{}, store.ErrConflict
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUsers) Update(_ context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUsers) Delete(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

type fakeChallenges struct {
	mu         sync.Mutex
	challenges map[string]types.Challenge
	listErr    error

	// upsertFailAt makes UpsertAll fail on that 1-based row with upsertErr.
	upsertFailAt int
	upsertErr    error
}

func newFakeChallenges() *fakeChallenges {
	return &fakeChallenges{challenges: make(map[string]types.Challenge)}
}

func (f *fakeChallenges) List(_ context.Context, filter types.ChallengeFilter) ([]types.Challenge, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	matched := make([]types.Challenge, 0)
	for _, c := range f.challenges {
		if filter.OwnerExternalID != "" && c.OwnerExternalID != filter.OwnerExternalID {
			continue
		}
		if len(filter.States) > 0 {
			keep := false
			for _, s := range filter.States {
				if c.State == s {
					keep = true
				}
			}
			if !keep {
				continue
			}
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Difficulty != matched[j].Difficulty {
			return matched[i].Difficulty < matched[j].Difficulty
		}
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	if filter.Offset >= total {
		return []types.Challenge{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (f *fakeChallenges) Get(_ context.Context, id string) (types.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.challenges[id]
	if !ok {
		return types.Challenge{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeChallenges) Create(_ context.Context, c types.Challenge) (types.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.challenges[c.ID]; ok {
		return types.Challenge{}, store.ErrConflict
	}
	c.Version = 1
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	f.challenges[c.ID] = c
	return c, nil
}

func (f *fakeChallenges) Update(_ context.Context, c types.Challenge) (types.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.challenges[c.ID]
	if !ok {
		return types.Challenge{}, store.ErrNotFound
	}
	if current.Version != c.Version {
		return types.Challenge{}, store.ErrConflict
	}
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	f.challenges[c.ID] = c
	return c, nil
}

func (f *fakeChallenges) UpsertAll(_ context.Context, list []types.Challenge) ([]types.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	staged := make(map[string]types.Challenge, len(list))
	stored := make([]types.Challenge, 0, len(list))
	for i, c := range list {
		if f.upsertFailAt == i+1 {
			return nil, f.upsertErr
		}
		c.Version = f.challenges[c.ID].Version + 1
		staged[c.ID] = c
		stored = append(stored, c)
	}
	for id, c := range staged {
		f.challenges[id] = c
	}
	return stored, nil
}

func (f *fakeChallenges) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.challenges[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.challenges, id)
	return nil
}

type progressKey struct {
	userID      int
	challengeID string
}

type fakeProgress struct {
	mu   sync.Mutex
	rows map[progressKey]types.Progress

	// resetErr simulates a storage failure inside Reset.
	resetErr error
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{rows: make(map[progressKey]types.Progress)}
}

func (f *fakeProgress) Get(_ context.Context, userID int, challengeID string) (types.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[progressKey{userID, challengeID}]
	if !ok {
		return types.Progress{}, store.ErrNotFound
	}
	return row, nil
}

func (f *fakeProgress) init(userID int, challengeID string) types.Progress {
	key := progressKey{userID, challengeID}
	row, ok := f.rows[key]
	if !ok {
		now := time.Now().UTC()
		row = types.Progress{UserID: userID, ChallengeID: challengeID, CreatedAt: now, UpdatedAt: now}
		f.rows[key] = row
	}
	return row
}

func (f *fakeProgress) GetOrInit(_ context.Context, userID int, challengeID string) (types.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.init(userID, challengeID), nil
}

func (f *fakeProgress) RecordAttempt(_ context.Context, userID int, challengeID string) (types.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.init(userID, challengeID)
	if row.Completed {
		return types.Progress{}, store.ErrAlreadyCompleted
	}
	row.Attempts++
	f.rows[progressKey{userID, challengeID}] = row
	return row, nil
}

func (f *fakeProgress) ConsumeHint(_ context.Context, userID int, challengeID string, limit int) (types.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.init(userID, challengeID)
	if row.Completed {
		return types.Progress{}, store.ErrAlreadyCompleted
	}
	if row.HintsUsed >= limit {
		return types.Progress{}, store.ErrHintsExhausted
	}
	row.HintsUsed++
	f.rows[progressKey{userID, challengeID}] = row
	return row, nil
}

func (f *fakeProgress) Complete(_ context.Context, userID int, challengeID string, points int) (types.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := progressKey{userID, challengeID}
	row, ok := f.rows[key]
	if !ok {
		return types.Progress{}, store.ErrNotFound
	}
	if row.Completed {
		return types.Progress{}, store.ErrAlreadyCompleted
	}
	now := time.Now().UTC()
	row.Completed = true
	row.PointsEarned = &points
	row.CompletedAt = &now
	f.rows[key] = row
	return row, nil
}

func (f *fakeProgress) Reset(_ context.Context, userID int, challengeID *string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetErr != nil {
		return 0, f.resetErr
	}
	removed := 0
	for key := range f.rows {
		if key.userID == userID && (challengeID == nil || key.challengeID == *challengeID) {
			delete(f.rows, key)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeProgress) ListByUser(_ context.Context, userID int) ([]types.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := make([]types.Progress, 0)
	for key, row := range f.rows {
		if key.userID == userID {
			list = append(list, row)
		}
	}
	return list, nil
}

func (f *fakeProgress) UserTotals(_ context.Context, userID int) (types.UserTotals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	totals := types.UserTotals{UserID: userID}
	for key, row := range f.rows {
		if key.userID != userID {
			continue
		}
		totals.TotalHints += row.HintsUsed
		totals.TotalAttempts += row.Attempts
		if row.Completed {
			totals.Completed++
			totals.TotalPoints += *row.PointsEarned
		}
	}
	return totals, nil
}

func (f *fakeProgress) ChallengeStats(_ context.Context, challengeID string) (types.ChallengeStats, error) {
	return types.ChallengeStats{ChallengeID: challengeID}, nil
}

func (f *fakeProgress) Leaderboard(_ context.Context, limit int) ([]types.LeaderboardEntry, error) {
	return []types.LeaderboardEntry{}, nil
}

type fakeRewards struct {
	mu      sync.Mutex
	records map[progressKey]types.RewardRecord
}

func newFakeRewards() *fakeRewards {
	return &fakeRewards{records: make(map[progressKey]types.RewardRecord)}
}

func (f *fakeRewards) Get(_ context.Context, userID int, challengeID string) (types.RewardRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[progressKey{userID, challengeID}]
	if !ok {
		return types.RewardRecord{}, store.ErrNotFound
	}
	return record, nil
}

func (f *fakeRewards) Create(_ context.Context, record types.RewardRecord) (types.RewardRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := progressKey{record.UserID, record.ChallengeID}
	if _, ok := f.records[key]; ok {
		return types.RewardRecord{}, store.ErrConflict
	}
	record.ID = int64(len(f.records) + 1)
	record.IssuedAt = time.Now().UTC()
	f.records[key] = record
	return record, nil
}

func (f *fakeRewards) ListByUser(_ context.Context, userID int) ([]types.RewardRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := make([]types.RewardRecord, 0)
	for key, record := range f.records {
		if key.userID == userID {
			list = append(list, record)
		}
	}
	return list, nil
}

func (f *fakeRewards) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeIssuer struct {
	calls    int
	err      error
	response string
	lastTo   string
}

func (f *fakeIssuer) Issue(_ context.Context, recipientEmail, badgeClassID, narrative string) (string, error) {
	f.calls++
	f.lastTo = recipientEmail
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeNotifier struct {
	mu          sync.Mutex
	completions []types.CompletionEvent
	lifecycle   []types.LifecycleEvent
	err         error
}

func (f *fakeNotifier) ChallengeCompleted(_ context.Context, event types.CompletionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, event)
	return f.err
}

func (f *fakeNotifier) LifecycleChanged(_ context.Context, event types.LifecycleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lifecycle = append(f.lifecycle, event)
	return f.err
}

type fakeObjects struct {
	objects map[string][]byte
	getErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// fixture wires every service over in-memory fakes.
type fixture struct {
	users        *fakeUsers
	challenges   *fakeChallenges
	progress     *fakeProgress
	rewards      *fakeRewards
	issuer       *fakeIssuer
	notifier     *fakeNotifier
	userSvc      *UserService
	challengeSvc *ChallengeService
	approvalSvc  *ApprovalService
	progressSvc  *ProgressService
	dispatcher   *RewardDispatcher
	gameplay     *GameplayService
	index        *ChallengeIndex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	calc, err := scoring.New(scoring.DefaultConfig())
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}

	f := &fixture{
		users:      newFakeUsers(),
		challenges: newFakeChallenges(),
		progress:   newFakeProgress(),
		rewards:    newFakeRewards(),
		issuer:     &fakeIssuer{response: `{"result":[{"entityId":"abc"}]}`},
		notifier:   &fakeNotifier{},
	}
	f.index = NewChallengeIndex(f.challenges, nil, time.Minute, logger)
	f.userSvc = NewUserService(f.users, []string{"admin-1"}, logger)
	f.approvalSvc = NewApprovalService(f.challenges, f.index, f.notifier, logger)
	f.challengeSvc = NewChallengeService(f.challenges, f.approvalSvc, f.index, logger)
	f.progressSvc = NewProgressService(f.progress, logger)
	f.dispatcher = NewRewardDispatcher(f.rewards, f.issuer, logger)
	f.gameplay = NewGameplayService(f.userSvc, f.challengeSvc, f.progressSvc, f.dispatcher, calc, f.notifier, logger)
	return f
}

func (f *fixture) register(t *testing.T, externalID, role, email string) types.User {
	t.Helper()
	user, err := f.userSvc.Register(context.Background(), externalID, externalID, email)
	if err != nil {
		t.Fatalf("register %s: %v", externalID, err)
	}
	if role != user.Role {
		user.Role = role
		if user, err = f.users.Update(context.Background(), user); err != nil {
			t.Fatalf("set role: %v", err)
		}
	}
	return user
}

// approvedChallenge creates and approves a challenge owned by creator.
func (f *fixture) approvedChallenge(t *testing.T, creator, admin types.User, draft ChallengeDraft) types.Challenge {
	t.Helper()
	ctx := context.Background()
	created, err := f.challengeSvc.Create(ctx, creator, draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	approved, err := f.approvalSvc.Approve(ctx, admin, created.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return approved
}

func sampleDraft() ChallengeDraft {
	return ChallengeDraft{
		Name:        "Keys Without Locks",
		Description: "What has keys but opens no locks?",
		Answer:      "A Piano",
		Difficulty:  1,
		Reward:      types.TextReward{Body: "The secret word is allegro."},
		Hints:       []string{"It makes music", "Black and white", "88 of them"},
	}
}
