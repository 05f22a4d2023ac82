package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
	"github.com/fmaa-labs/fmaa-chat/internal/sentiment"
	"github.com/fmaa-labs/fmaa-chat/internal/stats"
	"github.com/fmaa-labs/fmaa-chat/internal/store"
)

type sentimentRequest struct {
	Text    string         `json:"text"`
	Source  string         `json:"source"`
	Context map[string]any `json:"context"`
}

// sentimentPatch carries optional fields for updates. Text is immutable.
type sentimentPatch struct {
	Source     *string        `json:"source"`
	Type       *string        `json:"sentiment_type"`
	Score      *float64       `json:"sentiment_score"`
	Confidence *float64       `json:"confidence"`
	Keywords   []string       `json:"keywords"`
	Context    map[string]any `json:"context"`
}

func unitInterval(v float64) bool { return v >= 0 && v <= 1 }

// ListSentiments lists stored analyses with filters, pagination and a
// summary.
func (h *Handler) ListSentiments(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(r, 50)
	if !ok {
		Error(w, http.StatusBadRequest, "limit and offset must be non-negative integers")
		return
	}
	q := r.URL.Query()
	filter := store.SentimentFilter{
		Source: q.Get("source"),
		Type:   domain.SentimentType(q.Get("sentiment_type")),
		Limit:  limit,
		Offset: offset,
	}
	if filter.Type != "" && !filter.Type.Valid() {
		Error(w, http.StatusBadRequest, "sentiment_type must be positive, negative or neutral")
		return
	}
	if v := q.Get("start_date"); v != "" {
		t, err := stats.ParseTime(v)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid start_date")
			return
		}
		filter.Start = t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := stats.ParseTime(v)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid end_date")
			return
		}
		filter.End = t
	}

	analyses, total, err := h.repo.ListSentiments(r.Context(), filter)
	if err != nil {
		internalError(w, "Failed to list sentiment analyses", err)
		return
	}
	if analyses == nil {
		analyses = []*domain.SentimentAnalysis{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data":    analyses,
		"summary": sentiment.Summarize(analyses),
		"pagination": map[string]int{
			"limit":  limit,
			"offset": offset,
			"count":  len(analyses),
			"total":  total,
		},
	})
}

// AnalyzeSentiment scores a text and stores the result.
func (h *Handler) AnalyzeSentiment(w http.ResponseWriter, r *http.Request) {
	var req sentimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required for sentiment analysis")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	res := sentiment.Analyze(req.Text)
	now := h.now().UTC()
	a := &domain.SentimentAnalysis{
		ID:         h.newID(),
		Text:       sentiment.Truncate(req.Text),
		Source:     req.Source,
		Score:      res.Score,
		Type:       res.Type,
		Confidence: res.Confidence,
		Keywords:   res.Keywords,
		Context:    req.Context,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.repo.CreateSentiment(r.Context(), a); err != nil {
		internalError(w, "Failed to store sentiment analysis", err)
		return
	}
	JSON(w, http.StatusCreated, map[string]interface{}{
		"data":    a,
		"message": "Sentiment analysis completed successfully",
	})
}

// GetSentiment returns one analysis.
func (h *Handler) GetSentiment(w http.ResponseWriter, r *http.Request) {
	a, err := h.repo.GetSentiment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		internalError(w, "Failed to get sentiment analysis", err)
		return
	}
	if a == nil {
		Error(w, http.StatusNotFound, "sentiment analysis not found")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"data": a})
}

// UpdateSentiment applies a partial update, for example a human correction
// of the polarity.
func (h *Handler) UpdateSentiment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var patch sentimentPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.repo.GetSentiment(ctx, chi.URLParam(r, "id"))
	if err != nil {
		internalError(w, "Failed to get sentiment analysis", err)
		return
	}
	if a == nil {
		Error(w, http.StatusNotFound, "sentiment analysis not found")
		return
	}

	if patch.Source != nil {
		a.Source = *patch.Source
	}
	if patch.Type != nil {
		typ := domain.SentimentType(*patch.Type)
		if !typ.Valid() {
			Error(w, http.StatusBadRequest, "sentiment_type must be positive, negative or neutral")
			return
		}
		a.Type = typ
	}
	if patch.Score != nil {
		if !unitInterval(*patch.Score) {
			Error(w, http.StatusBadRequest, "sentiment_score must be between 0 and 1")
			return
		}
		a.Score = *patch.Score
	}
	if patch.Confidence != nil {
		if !unitInterval(*patch.Confidence) {
			Error(w, http.StatusBadRequest, "confidence must be between 0 and 1")
			return
		}
		a.Confidence = *patch.Confidence
	}
	if patch.Keywords != nil {
		a.Keywords = patch.Keywords
	}
	if patch.Context != nil {
		a.Context = patch.Context
	}
	a.UpdatedAt = h.now().UTC()

	found, err := h.repo.UpdateSentiment(ctx, a)
	if err != nil {
		internalError(w, "Failed to update sentiment analysis", err)
		return
	}
	if !found {
		Error(w, http.StatusNotFound, "sentiment analysis not found")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"data":    a,
		"message": "Sentiment analysis updated successfully",
	})
}

// DeleteSentiment removes an analysis.
func (h *Handler) DeleteSentiment(w http.ResponseWriter, r *http.Request) {
	found, err := h.repo.DeleteSentiment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		internalError(w, "Failed to delete sentiment analysis", err)
		return
	}
	if !found {
		Error(w, http.StatusNotFound, "sentiment analysis not found")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": "Sentiment analysis deleted successfully"})
}
