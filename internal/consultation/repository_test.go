package consultation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"symptosafe/internal/analysis"
	"symptosafe/internal/config"
	"symptosafe/internal/platform/database"
	"symptosafe/internal/safety"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db, config.StorageSQLite, ""); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepository(db)
}

func analysedSession(userID string, at time.Time) *Session {
	res := analysis.ClassifyFallback("fever and chills")
	return newSession(TurnRequest{
		UserID:   userID,
		Language: "en",
		Messages: []analysis.Message{{Role: analysis.RoleUser, Content: "fever and chills", Timestamp: at}},
	}, TurnResponse{Analysis: &res}, at)
}

func TestRepository_SaveAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	want := analysedSession("user-1", at)
	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got, err := repo.GetByID(ctx, want.ID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestRepository_EmergencySession(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	want := newSession(TurnRequest{
		UserID:   "user-1",
		Messages: []analysis.Message{{Role: analysis.RoleUser, Content: "he has chest pain"}},
	}, TurnResponse{Emergency: safety.DetectEmergency("he has chest pain")}, time.Now())

	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	got, err := repo.GetByID(ctx, want.ID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got.Analysis != nil || got.PrimaryCondition != nil {
		t.Errorf("expected no analysis or primary condition, got %+v", got)
	}
	if got.Emergency == nil || got.Emergency.EmergencyType != "Cardiac Emergency" {
		t.Errorf("unexpected emergency %+v", got.Emergency)
	}
	if got.RiskScore != 100 || got.RiskLevel != analysis.RiskCritical {
		t.Errorf("expected critical/100, got %s/%d", got.RiskLevel, got.RiskScore)
	}
}

func TestRepository_ListByUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		s := analysedSession("user-1", base.Add(time.Duration(i)*time.Hour))
		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
		ids = append(ids, s.ID)
	}
	if err := repo.Save(ctx, analysedSession("user-2", base)); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.ListByUser(ctx, "user-1", 3)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	gotIDs := make([]uuid.UUID, len(got))
	for i, s := range got {
		gotIDs[i] = s.ID
	}
	if diff := cmp.Diff([]uuid.UUID{ids[3], ids[2], ids[1]}, gotIDs); diff != "" {
		t.Errorf("expected newest first (-want +got):\n%s", diff)
	}

	none, err := repo.ListByUser(ctx, "nobody", 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected an empty list, got %#v", none)
	}
}

func TestRepository_Upsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s := analysedSession("user-1", time.Now())
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Language = "hi"
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := repo.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got.Language != "hi" {
		t.Errorf("expected updated language, got %q", got.Language)
	}
}

func TestRepository_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.GetByID(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
