package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hintquest/apiserver/types"
)

func TestCreateThenGetRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.register(t, "creator-1", types.RoleCreator, "")

	draft := sampleDraft()
	created, err := f.challengeSvc.Create(ctx, creator, draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.State != types.StatePending {
		t.Fatalf("state=%s, want pending", created.State)
	}
	if !strings.HasPrefix(created.ID, "keys-without-locks-") {
		t.Fatalf("unexpected id %q", created.ID)
	}

	got, err := f.challengeSvc.Get(ctx, creator, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != draft.Name || got.Description != draft.Description || got.Answer != draft.Answer ||
		got.Difficulty != draft.Difficulty || !reflect.DeepEqual(got.Hints, draft.Hints) ||
		got.Reward != draft.Reward || got.OwnerExternalID != creator.ExternalID {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.register(t, "creator-1", types.RoleCreator, "")
	player := f.register(t, "player-1", types.RoleUser, "")

	if _, err := f.challengeSvc.Create(ctx, player, sampleDraft()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("player create: expected ErrPermissionDenied, got %v", err)
	}

	cases := []func(d *ChallengeDraft){
		func(d *ChallengeDraft) { d.Name = "  " },
		func(d *ChallengeDraft) { d.Description = "" },
		func(d *ChallengeDraft) { d.Answer = "" },
		func(d *ChallengeDraft) { d.Difficulty = 5 },
		func(d *ChallengeDraft) { d.Difficulty = 0 },
		func(d *ChallengeDraft) { d.Name = strings.Repeat("n", maxNameLength+1) },
		func(d *ChallengeDraft) { d.Hints = make([]string, maxHints+1); fillHints(d.Hints) },
		func(d *ChallengeDraft) { d.Reward = types.TextReward{Body: strings.Repeat("r", maxRewardTextLength+1)} },
	}
	for i, mutate := range cases {
		draft := sampleDraft()
		mutate(&draft)
		if _, err := f.challengeSvc.Create(ctx, creator, draft); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
}

func fillHints(hints []string) {
	for i := range hints {
		hints[i] = "hint"
	}
}

func TestHiddenChallengesAreNotFoundForPlayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.register(t, "creator-1", types.RoleCreator, "")
	admin := f.register(t, "admin-1", types.RoleAdmin, "")
	player := f.register(t, "player-1", types.RoleUser, "")

	created, err := f.challengeSvc.Create(ctx, creator, sampleDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.challengeSvc.Get(ctx, player, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("pending get: expected ErrNotFound, got %v", err)
	}

	if _, err := f.approvalSvc.Approve(ctx, admin, created.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.challengeSvc.Get(ctx, player, created.ID); err != nil {
		t.Fatalf("approved get: %v", err)
	}

	if _, err := f.approvalSvc.Disable(ctx, admin, created.ID, "typo in hint"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := f.challengeSvc.Get(ctx, player, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("disabled get: expected ErrNotFound, got %v", err)
	}
	if _, err := f.gameplay.RequestHint(ctx, player.ID, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("disabled hint: expected ErrNotFound, got %v", err)
	}
	list, total, err := f.challengeSvc.ListApproved(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 || len(list) != 0 {
		t.Fatalf("disabled challenge listed: %+v", list)
	}
	if _, err := f.challengeSvc.Get(ctx, creator, created.ID); err != nil {
		t.Fatalf("owner should still see disabled challenge: %v", err)
	}
}

func TestApproveWithTextRewardAppearsInListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.register(t, "creator-1", types.RoleCreator, "")
	admin := f.register(t, "admin-1", types.RoleAdmin, "")

	noReward := sampleDraft()
	noReward.Reward = nil
	bare, err := f.challengeSvc.Create(ctx, creator, noReward)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.approvalSvc.Approve(ctx, admin, bare.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("approve without reward: expected ErrValidation, got %v", err)
	}

	approved := f.approvedChallenge(t, creator, admin, sampleDraft())
	if approved.ApprovedBy != admin.ExternalID {
		t.Fatalf("approved by %q", approved.ApprovedBy)
	}

	list, total, err := f.challengeSvc.ListApproved(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || list[0].ID != approved.ID {
		t.Fatalf("approved challenge missing from listing: %+v", list)
	}
	if list[0].RewardType != types.RewardTypeText || list[0].HintCount != 3 {
		t.Fatalf("unexpected summary: %+v", list[0])
	}

	if len(f.notifier.lifecycle) != 1 || f.notifier.lifecycle[0].To != types.StateApproved {
		t.Fatalf("expected one lifecycle event, got %+v", f.notifier.lifecycle)
	}
}

func TestApprovalIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.register(t, "creator-1", types.RoleCreator, "")

	created, err := f.challengeSvc.Create(ctx, creator, sampleDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.approvalSvc.Approve(ctx, creator, created.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestUpdatePermissionsAndRevision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.register(t, "creator-1", types.RoleCreator, "")
	other := f.register(t, "creator-2", types.RoleCreator, "")
	admin := f.register(t, "admin-1", types.RoleAdmin, "")

	approved := f.approvedChallenge(t, creator, admin, sampleDraft())

	name := "Keys, Revisited"
	if _, err := f.challengeSvc.Update(ctx, other, approved.ID, ChallengePatch{Name: &name}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("non-owner update: expected ErrPermissionDenied, got %v", err)
	}

	renamed, err := f.challengeSvc.Update(ctx, creator, approved.ID, ChallengePatch{Name: &name})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.State != types.StateApproved || renamed.Name != name {
		t.Fatalf("cosmetic edit changed state: %+v", renamed)
	}

	answer := "grand piano"
	revised, err := f.challengeSvc.Update(ctx, creator, approved.ID, ChallengePatch{Answer: &answer})
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if revised.State != types.StatePending || revised.ApprovedBy != "" || revised.ApprovedAt != nil {
		t.Fatalf("core edit should return to pending and clear approval: %+v", revised)
	}
	if revised.Answer != answer {
		t.Fatalf("answer=%q", revised.Answer)
	}

	list, _, err := f.challengeSvc.ListApproved(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("revised challenge still listed: %+v", list)
	}

	if _, err := f.challengeSvc.ReviseApprovedChallenge(ctx, creator, approved.ID, ChallengePatch{Answer: &answer}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("revising a pending challenge: expected ErrInvalidTransition, got %v", err)
	}
}

func TestGameplayEditWhileDisabledNeedsReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.register(t, "creator-1", types.RoleCreator, "")
	admin := f.register(t, "admin-1", types.RoleAdmin, "")

	approved := f.approvedChallenge(t, creator, admin, sampleDraft())
	if _, err := f.approvalSvc.Disable(ctx, admin, approved.ID, "typo in hint"); err != nil {
		t.Fatalf("disable: %v", err)
	}

	description := "Now with a clearer riddle."
	cosmetic, err := f.challengeSvc.Update(ctx, creator, approved.ID, ChallengePatch{Description: &description})
	if err != nil {
		t.Fatalf("cosmetic edit: %v", err)
	}
	if cosmetic.State != types.StateDisabled || cosmetic.ApprovedBy != "admin-1" {
		t.Fatalf("cosmetic edit should keep the suspended approval: %+v", cosmetic)
	}

	answer := "guitar"
	edited, err := f.challengeSvc.Update(ctx, creator, approved.ID, ChallengePatch{Answer: &answer})
	if err != nil {
		t.Fatalf("answer edit: %v", err)
	}
	if edited.State != types.StatePending || edited.ApprovedBy != "" || edited.ApprovedAt != nil {
		t.Fatalf("answer edit on a disabled challenge should return it to pending: %+v", edited)
	}
	if edited.DisabledAt != nil || edited.DisabledReason != "" {
		t.Fatalf("disable fields should be cleared: %+v", edited)
	}

	if _, err := f.approvalSvc.Reenable(ctx, admin, approved.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reenable after edit: expected ErrInvalidTransition, got %v", err)
	}
	list, _, err := f.challengeSvc.ListApproved(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("edited challenge published without review: %+v", list)
	}
}

func TestUpdateStaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.register(t, "creator-1", types.RoleCreator, "")

	created, err := f.challengeSvc.Create(ctx, creator, sampleDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stale := created
	stale.Description = "changed elsewhere"
	if _, err := f.challenges.Update(ctx, stale); err != nil {
		t.Fatalf("concurrent update: %v", err)
	}
	created.Description = "changed here"
	if _, err := f.challenges.Update(ctx, created); err == nil {
		t.Fatalf("expected stale write to fail")
	}
	if _, err := f.approvalSvc.commit(ctx, created, ActionReject, "admin-1", "late"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRemoveRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.register(t, "creator-1", types.RoleCreator, "")
	player := f.register(t, "player-1", types.RoleUser, "")
	admin := f.register(t, "admin-1", types.RoleAdmin, "")

	approved := f.approvedChallenge(t, creator, admin, sampleDraft())
	if err := f.challengeSvc.Remove(ctx, player, approved.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("player remove: expected ErrPermissionDenied, got %v", err)
	}
	if err := f.challengeSvc.Remove(ctx, admin, approved.ID); err != nil {
		t.Fatalf("admin remove: %v", err)
	}
	if _, err := f.challengeSvc.Get(ctx, admin, approved.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
	list, _, _ := f.challengeSvc.ListApproved(ctx, 0, 10)
	if len(list) != 0 {
		t.Fatalf("removed challenge still indexed")
	}
}

func TestListAllIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.register(t, "creator-1", types.RoleCreator, "")
	admin := f.register(t, "admin-1", types.RoleAdmin, "")

	if _, err := f.challengeSvc.Create(ctx, creator, sampleDraft()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := f.challengeSvc.ListAll(ctx, creator, nil, 0, 10); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	list, total, err := f.challengeSvc.ListAll(ctx, admin, []types.ChallengeState{types.StatePending}, 0, 10)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("total=%d len=%d", total, len(list))
	}
	owned, _, err := f.challengeSvc.ListOwned(ctx, creator, 0, 10)
	if err != nil || len(owned) != 1 {
		t.Fatalf("owned=%v err=%v", owned, err)
	}
}

func TestChallengeIDIsStableAndDistinct(t *testing.T) {
	at := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	a := NewChallengeID("Hello World!", "owner-a", at)
	b := NewChallengeID("Hello World!", "owner-b", at)
	c := NewChallengeID("Hello World!", "owner-a", at.Add(time.Nanosecond))
	if a == b || a == c {
		t.Fatalf("ids collide: %s %s %s", a, b, c)
	}
	if a != NewChallengeID("Hello World!", "owner-a", at) {
		t.Fatalf("id not deterministic")
	}
	if !strings.HasPrefix(a, "hello-world-") {
		t.Fatalf("unexpected id %q", a)
	}
	if got := NewChallengeID("!!!", "o", at); !strings.HasPrefix(got, "challenge-") {
		t.Fatalf("blank slug fallback missing: %q", got)
	}
}
