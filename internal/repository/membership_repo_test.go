package repository

import (
	"context"
	"testing"

	"github.com/seatsync/seatsync-api/internal/models"
)

func TestMembershipRepository_CountUnknownEntity(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	count, known, err := repos.Membership.CountByEntity(ctx, 999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if known {
		t.Error("unknown entity should report known=false")
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestMembershipRepository_CountTeam(t *testing.T) {
	db := setupTestDB(t)
	repos := NewRepositories(db)
	ctx := context.Background()

	insertTestTeam(t, db, 1, "eng", nil)

	// Known team with no members is zero seats, not unknown
	count, known, err := repos.Membership.CountByEntity(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !known {
		t.Fatal("empty team should still be known")
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}

	insertTestMembership(t, db, 1, 10)
	insertTestMembership(t, db, 1, 11)

	count, known, err = repos.Membership.CountByEntity(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !known || count != 2 {
		t.Errorf("count = %d known = %v, want 2 true", count, known)
	}
}

func TestMembershipRepository_CountOrganization(t *testing.T) {
	db := setupTestDB(t)
	repos := NewRepositories(db)
	ctx := context.Background()

	// Org 100 with two teams; user 10 is on both teams and counts once.
	insertTestTeam(t, db, 1, "eng", int64Ptr(100))
	insertTestTeam(t, db, 2, "design", int64Ptr(100))
	insertTestMembership(t, db, 1, 10)
	insertTestMembership(t, db, 1, 11)
	insertTestMembership(t, db, 2, 10)
	insertTestMembership(t, db, 2, 12)

	count, known, err := repos.Membership.CountByEntity(ctx, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !known {
		t.Fatal("organization should be known via its teams")
	}
	if count != 3 {
		t.Errorf("count = %d, want 3 distinct users", count)
	}
}

func TestMembershipRepository_AddRemoveMember(t *testing.T) {
	db := setupTestDB(t)
	repos := NewRepositories(db)
	ctx := context.Background()

	insertTestTeam(t, db, 1, "eng", nil)

	added, err := repos.Membership.AddMember(ctx, 1, 10)
	if err != nil {
		t.Fatalf("failed to add member: %v", err)
	}
	if !added {
		t.Error("expected first add to report true")
	}

	// Adding the same member again is a no-op
	added, err = repos.Membership.AddMember(ctx, 1, 10)
	if err != nil {
		t.Fatalf("failed to re-add member: %v", err)
	}
	if added {
		t.Error("expected duplicate add to report false")
	}

	removed, err := repos.Membership.RemoveMember(ctx, 1, 10)
	if err != nil {
		t.Fatalf("failed to remove member: %v", err)
	}
	if !removed {
		t.Error("expected remove to report true")
	}

	removed, err = repos.Membership.RemoveMember(ctx, 1, 10)
	if err != nil {
		t.Fatalf("failed to re-remove member: %v", err)
	}
	if removed {
		t.Error("expected second remove to report false")
	}
}

func TestMembershipRepository_Teams(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	team, err := repos.Membership.GetTeam(ctx, 999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if team != nil {
		t.Error("expected nil for unknown team")
	}

	created := &models.Team{Name: "eng", ParentOrgID: int64Ptr(100)}
	if err := repos.Membership.CreateTeam(ctx, created); err != nil {
		t.Fatalf("failed to create team: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected autogenerated team id")
	}

	got, err := repos.Membership.GetTeam(ctx, created.ID)
	if err != nil {
		t.Fatalf("failed to get team: %v", err)
	}
	if got == nil || got.Name != "eng" {
		t.Fatalf("got %+v, want eng", got)
	}
	if got.ParentOrgID == nil || *got.ParentOrgID != 100 {
		t.Errorf("parent org = %v, want 100", got.ParentOrgID)
	}
}
