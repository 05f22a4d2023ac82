package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

func testSentiment(id string, typ domain.SentimentType, created time.Time) *domain.SentimentAnalysis {
	return &domain.SentimentAnalysis{
		ID:         id,
		Text:       "great support",
		Source:     "chat",
		Score:      0.5,
		Type:       typ,
		Confidence: 0.8,
		Keywords:   []string{"great", "support"},
		Context:    map[string]any{"channel": "web"},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestSQLiteStore_SentimentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	a := testSentiment("s-1", domain.SentimentPositive, base)
	if err := s.CreateSentiment(ctx, a); err != nil {
		t.Fatalf("CreateSentiment failed: %v", err)
	}

	got, err := s.GetSentiment(ctx, "s-1")
	if err != nil || got == nil {
		t.Fatalf("GetSentiment = %v, %v", got, err)
	}
	if got.Text != "great support" || len(got.Keywords) != 2 || got.Context["channel"] != "web" || !got.CreatedAt.Equal(base) {
		t.Errorf("analysis not round-tripped: %+v", got)
	}

	got.Type = domain.SentimentNeutral
	got.Source = "review"
	got.UpdatedAt = base.Add(time.Minute)
	found, err := s.UpdateSentiment(ctx, got)
	if err != nil || !found {
		t.Fatalf("UpdateSentiment = %v, %v", found, err)
	}
	got, _ = s.GetSentiment(ctx, "s-1")
	if got.Type != domain.SentimentNeutral || got.Source != "review" {
		t.Errorf("update not applied: %+v", got)
	}

	found, err = s.UpdateSentiment(ctx, testSentiment("missing", domain.SentimentNeutral, base))
	if err != nil || found {
		t.Errorf("UpdateSentiment(missing) = %v, %v", found, err)
	}

	found, err = s.DeleteSentiment(ctx, "s-1")
	if err != nil || !found {
		t.Fatalf("DeleteSentiment = %v, %v", found, err)
	}
	if got, err := s.GetSentiment(ctx, "s-1"); err != nil || got != nil {
		t.Errorf("GetSentiment after delete = %v, %v", got, err)
	}
	if found, _ := s.DeleteSentiment(ctx, "s-1"); found {
		t.Error("second delete reported found")
	}
}

func TestSQLiteStore_ListSentiments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	types := []domain.SentimentType{domain.SentimentPositive, domain.SentimentNegative, domain.SentimentPositive}
	for i, typ := range types {
		a := testSentiment(fmt.Sprintf("s-%d", i), typ, base.Add(time.Duration(i)*time.Hour))
		a.Keywords = nil
		if err := s.CreateSentiment(ctx, a); err != nil {
			t.Fatalf("CreateSentiment failed: %v", err)
		}
	}

	all, total, err := s.ListSentiments(ctx, SentimentFilter{})
	if err != nil {
		t.Fatalf("ListSentiments failed: %v", err)
	}
	if total != 3 || all[0].ID != "s-2" {
		t.Fatalf("expected newest first, got %d (total %d)", len(all), total)
	}
	if all[0].Keywords == nil {
		t.Error("keywords should decode to an empty list")
	}

	positive, total, err := s.ListSentiments(ctx, SentimentFilter{Type: domain.SentimentPositive, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListSentiments failed: %v", err)
	}
	if total != 2 || len(positive) != 1 || positive[0].ID != "s-0" {
		t.Errorf("positive page = %+v (total %d)", positive, total)
	}

	window, total, err := s.ListSentiments(ctx, SentimentFilter{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)})
	if err != nil {
		t.Fatalf("ListSentiments failed: %v", err)
	}
	if total != 1 || window[0].ID != "s-1" {
		t.Errorf("window = %+v (total %d)", window, total)
	}
}
