package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/mail-autoreply/internal/model"
	"github.com/nhle/mail-autoreply/internal/store"
)

// NewTestStore opens an in-memory archive with migrations applied and
// closes it when the test ends.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening test archive: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test archive: %v", err)
		}
	})

	return s
}

// SeedActivities records one replied, one skipped and one failed message,
// a minute apart starting at base, and returns them oldest first.
func SeedActivities(t *testing.T, s store.Store, base time.Time) []model.Activity {
	t.Helper()

	records := []model.Activity{
		{MessageID: "m1", Subject: "Question", Sender: "Bob <bob@example.com>", Kind: model.ActivityReplied, Status: "Replied", CreatedAt: base},
		{MessageID: "m2", Subject: "Sale!", Sender: "shop@noreply.example.com", Kind: model.ActivitySkipped, Status: "Skipped", CreatedAt: base.Add(time.Minute)},
		{MessageID: "m3", Subject: "見積もり", Sender: "tanaka@example.jp", Kind: model.ActivityError, Status: "Error: boom", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range records {
		if err := s.RecordActivity(context.Background(), r); err != nil {
			t.Fatalf("seeding activity %s: %v", r.MessageID, err)
		}
	}
	return records
}
