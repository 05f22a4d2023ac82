package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeSentiment(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	w, got := a.do(t, http.MethodPost, "/api/sentiment", map[string]any{"text": "  "})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NotEmpty(t, got["error"])

	w, got = a.do(t, http.MethodPost, "/api/sentiment", map[string]any{
		"text":    "I love this great product",
		"context": map[string]any{"channel": "web"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	data := got["data"].(map[string]any)
	require.Equal(t, "agent-1", data["id"])
	require.Equal(t, "api", data["source"])
	require.Equal(t, "positive", data["sentiment_type"])
	require.EqualValues(t, 0.4, data["sentiment_score"])
	require.EqualValues(t, 0.7, data["confidence"])
	require.Equal(t, []any{"love", "this", "great", "product"}, data["keywords"])
	require.Equal(t, map[string]any{"channel": "web"}, data["context"])

	long := strings.Repeat("a", 1500)
	_, got = a.do(t, http.MethodPost, "/api/sentiment", map[string]any{"text": long, "source": "review"})
	data = got["data"].(map[string]any)
	require.Len(t, data["text"], 1000)
	require.Equal(t, "neutral", data["sentiment_type"])
}

func TestListSentiments(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"great service", "awful wait", "love it"} {
		a.h.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		w, _ := a.do(t, http.MethodPost, "/api/sentiment", map[string]any{"text": text, "source": "chat"})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, got := a.do(t, http.MethodGet, "/api/sentiment", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, got["data"], 3)
	summary := got["summary"].(map[string]any)
	require.EqualValues(t, 3, summary["total"])
	require.Equal(t, map[string]any{"positive": 2.0, "negative": 1.0}, summary["by_sentiment"])

	_, got = a.do(t, http.MethodGet, "/api/sentiment?sentiment_type=positive&limit=1", nil)
	require.Len(t, got["data"], 1)
	require.EqualValues(t, 2, got["pagination"].(map[string]any)["total"])
	require.Equal(t, "love it", got["data"].([]any)[0].(map[string]any)["text"])

	_, got = a.do(t, http.MethodGet, "/api/sentiment?end_date=2025-03-01T10:30:00Z", nil)
	require.Len(t, got["data"], 1)

	for _, q := range []string{"sentiment_type=angry", "start_date=later", "limit=-1"} {
		w, _ = a.do(t, http.MethodGet, "/api/sentiment?"+q, nil)
		require.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestSentimentLifecycle(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	_, got := a.do(t, http.MethodPost, "/api/sentiment", map[string]any{"text": "this is bad"})
	id := got["data"].(map[string]any)["id"].(string)

	w, got := a.do(t, http.MethodGet, "/api/sentiment/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "negative", got["data"].(map[string]any)["sentiment_type"])

	w, _ = a.do(t, http.MethodPut, "/api/sentiment/"+id, map[string]any{"sentiment_type": "grumpy"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = a.do(t, http.MethodPut, "/api/sentiment/"+id, map[string]any{"confidence": 1.5})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, got = a.do(t, http.MethodPut, "/api/sentiment/"+id, map[string]any{
		"sentiment_type": "neutral",
		"confidence":     0.95,
		"source":         "reviewed",
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := got["data"].(map[string]any)
	require.Equal(t, "neutral", data["sentiment_type"])
	require.EqualValues(t, 0.95, data["confidence"])
	require.Equal(t, "this is bad", data["text"])

	_, got = a.do(t, http.MethodGet, "/api/sentiment/"+id, nil)
	require.Equal(t, "reviewed", got["data"].(map[string]any)["source"])

	w, _ = a.do(t, http.MethodPut, "/api/sentiment/missing", map[string]any{"source": "x"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = a.do(t, http.MethodDelete, "/api/sentiment/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(t, http.MethodGet, "/api/sentiment/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	w, _ = a.do(t, http.MethodDelete, "/api/sentiment/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
