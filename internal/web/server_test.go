package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/docsbot/internal/chat"
	"github.com/mixelka/docsbot/pkg/models"
)

type fakeAsker struct {
	answer  string
	sources []models.Source
	err     error

	lastQuestion string
	lastFocus    string
}

func (f *fakeAsker) Ask(_ context.Context, sess *chat.Session, question, focus string) (models.Exchange, error) {
	f.lastQuestion = question
	f.lastFocus = focus
	if f.err != nil {
		return models.Exchange{}, f.err
	}
	ex := models.Exchange{Question: question, Answer: f.answer, Sources: f.sources}
	sess.Append(ex)
	return ex, nil
}

func newTestServer(asker Asker) (*Server, *chat.Registry) {
	sessions := chat.NewRegistry()
	return NewServer(asker, sessions, slog.New(slog.DiscardHandler)), sessions
}

func TestChatEndpoint(t *testing.T) {
	asker := &fakeAsker{
		answer:  "Within 30 days.",
		sources: []models.Source{{Document: "expense-guide", Link: "https://docs.example.com/expense-guide"}},
	}
	srv, sessions := newTestServer(asker)

	body := `{"sessionId":"s1","question":"When are expenses due?","focus":"expenses"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Within 30 days.")
	assert.Contains(t, rec.Body.String(), "expense-guide")
	assert.Equal(t, "When are expenses due?", asker.lastQuestion)
	assert.Equal(t, "expenses", asker.lastFocus)

	sess, ok := sessions.Get("s1")
	require.True(t, ok)
	assert.Len(t, sess.Exchanges(), 1)
}

func TestChatEndpointValidation(t *testing.T) {
	srv, _ := newTestServer(&fakeAsker{answer: "ok"})

	tests := []struct {
		name string
		body string
	}{
		{"missing session", `{"question":"q?"}`},
		{"missing question", `{"sessionId":"s1"}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestChatEndpointPipelineFailure(t *testing.T) {
	srv, _ := newTestServer(&fakeAsker{err: errors.New("llm down")})

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"sessionId":"s1","question":"q?"}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	srv, sessions := newTestServer(&fakeAsker{})
	sessions.GetOrCreate("s1").Append(models.Exchange{Question: "q1", Answer: "a1"})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s1/export", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "transcript-s1.json")
	assert.Contains(t, rec.Body.String(), `"q1"`)
}

func TestExportUnknownSession(t *testing.T) {
	srv, _ := newTestServer(&fakeAsker{})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/nope/export", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportEndpoint(t *testing.T) {
	srv, sessions := newTestServer(&fakeAsker{})

	body := `{"display":[{"question":"q1","answer":"a1"}],"history":[["q1","a1"]]}`
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/s1/import", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	sess, ok := sessions.Get("s1")
	require.True(t, ok)
	assert.Equal(t, [][2]string{{"q1", "a1"}}, sess.History())
}

func TestImportRejectsBadTranscript(t *testing.T) {
	srv, _ := newTestServer(&fakeAsker{})

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/s1/import", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(&fakeAsker{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
