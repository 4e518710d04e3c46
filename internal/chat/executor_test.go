package chat

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/docsbot/internal/openai"
	"github.com/mixelka/docsbot/internal/pinecone"
	"github.com/mixelka/docsbot/pkg/models"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, f.err
}

type fakeRetriever struct {
	matches    []pinecone.Match
	lastFilter map[string]any
	err        error
}

func (f *fakeRetriever) Query(_ context.Context, _ []float32, _ int, filter map[string]any) ([]pinecone.Match, error) {
	f.lastFilter = filter
	return f.matches, f.err
}

type fakeCompleter struct {
	answer   string
	messages []openai.Message
	err      error
}

func (f *fakeCompleter) Complete(_ context.Context, messages []openai.Message) (string, error) {
	f.messages = messages
	return f.answer, f.err
}

func expenseMatch() pinecone.Match {
	return pinecone.Match{
		ID:    "chunk-1",
		Score: 0.9,
		Metadata: map[string]any{
			"document": "expense-guide",
			"sections": []any{"Submitting", "Deadlines"},
			"link":     "https://docs.example.com/expense-guide",
			"text":     "Expenses must be submitted within 30 days.",
		},
	}
}

func newTestExecutor(e *fakeEmbedder, r *fakeRetriever, c *fakeCompleter, opts ExecutorOptions) *Executor {
	return NewExecutor(e, r, c, opts, slog.New(slog.DiscardHandler))
}

func TestAskAppendsFullExchange(t *testing.T) {
	retriever := &fakeRetriever{matches: []pinecone.Match{expenseMatch()}}
	completer := &fakeCompleter{answer: "Within 30 days."}
	exec := newTestExecutor(&fakeEmbedder{}, retriever, completer, ExecutorOptions{})

	sess := NewSession("s1")
	ex, err := exec.Ask(context.Background(), sess, "When are expenses due?", "")
	require.NoError(t, err)

	assert.Equal(t, "Within 30 days.", ex.Answer)
	require.Len(t, ex.Sources, 1)
	assert.Equal(t, "expense-guide", ex.Sources[0].Document)
	assert.Equal(t, []string{"Submitting", "Deadlines"}, ex.Sources[0].Sections)

	require.Len(t, sess.Exchanges(), 1)
	assert.Equal(t, [][2]string{{"When are expenses due?", "Within 30 days."}}, sess.History())
}

func TestAskLeavesTranscriptUntouchedOnFailure(t *testing.T) {
	tests := []struct {
		name      string
		embedder  *fakeEmbedder
		retriever *fakeRetriever
		completer *fakeCompleter
	}{
		{
			name:      "embedding fails",
			embedder:  &fakeEmbedder{err: errors.New("embed down")},
			retriever: &fakeRetriever{},
			completer: &fakeCompleter{},
		},
		{
			name:      "retrieval fails",
			embedder:  &fakeEmbedder{},
			retriever: &fakeRetriever{err: errors.New("index down")},
			completer: &fakeCompleter{},
		},
		{
			name:      "completion fails",
			embedder:  &fakeEmbedder{},
			retriever: &fakeRetriever{matches: []pinecone.Match{expenseMatch()}},
			completer: &fakeCompleter{err: errors.New("llm down")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newTestExecutor(tt.embedder, tt.retriever, tt.completer, ExecutorOptions{})
			sess := NewSession("s1")

			_, err := exec.Ask(context.Background(), sess, "question?", "")
			require.Error(t, err)

			// No partial entry: a question without an answer must
			// never appear in the transcript.
			assert.Empty(t, sess.Exchanges())
			assert.Empty(t, sess.History())
		})
	}
}

func TestAskHistoryFlowsIntoPrompt(t *testing.T) {
	completer := &fakeCompleter{answer: "Yes."}
	exec := newTestExecutor(&fakeEmbedder{}, &fakeRetriever{}, completer, ExecutorOptions{})

	sess := NewSession("s1")
	sess.Append(models.Exchange{Question: "Is there a travel policy?", Answer: "There is."})

	_, err := exec.Ask(context.Background(), sess, "Does it cover flights?", "")
	require.NoError(t, err)

	// system + prior pair + current question
	require.Len(t, completer.messages, 4)
	assert.Equal(t, "Is there a travel policy?", completer.messages[1].Content)
	assert.Equal(t, "There is.", completer.messages[2].Content)
	assert.Equal(t, "Does it cover flights?", completer.messages[3].Content)
}

func TestFocusRuleByKeyword(t *testing.T) {
	retriever := &fakeRetriever{}
	exec := newTestExecutor(&fakeEmbedder{}, retriever, &fakeCompleter{answer: "ok"}, ExecutorOptions{
		FocusRules: []FocusRule{
			{Name: "expenses", Keywords: []string{"expense", "receipt"}, Documents: []string{"expense-guide"}},
		},
	})

	sess := NewSession("s1")
	_, err := exec.Ask(context.Background(), sess, "How do I attach a RECEIPT?", "")
	require.NoError(t, err)

	require.NotNil(t, retriever.lastFilter)
	assert.Equal(t,
		map[string]any{"document": map[string]any{"$in": []string{"expense-guide"}}},
		retriever.lastFilter)
}

func TestFocusRuleExplicitSelectionWins(t *testing.T) {
	retriever := &fakeRetriever{}
	exec := newTestExecutor(&fakeEmbedder{}, retriever, &fakeCompleter{answer: "ok"}, ExecutorOptions{
		FocusRules: []FocusRule{
			{Name: "expenses", Keywords: []string{"expense"}, Documents: []string{"expense-guide"}},
			{Name: "travel", Keywords: []string{"travel"}, Documents: []string{"travel-policy"}},
		},
	})

	sess := NewSession("s1")
	// The question mentions expenses but the user chose travel.
	_, err := exec.Ask(context.Background(), sess, "expense rules on trips?", "travel")
	require.NoError(t, err)

	assert.Equal(t,
		map[string]any{"document": map[string]any{"$in": []string{"travel-policy"}}},
		retriever.lastFilter)
}

func TestFocusRuleKeywordSuppressedByExclusion(t *testing.T) {
	retriever := &fakeRetriever{}
	exec := newTestExecutor(&fakeEmbedder{}, retriever, &fakeCompleter{answer: "ok"}, ExecutorOptions{
		FocusRules: []FocusRule{
			{
				Name:            "workflow",
				Keywords:        []string{"workflow"},
				ExcludeKeywords: []string{"advance payment"},
				Documents:       []string{"workflow-overview"},
			},
		},
	})

	sess := NewSession("s1")
	_, err := exec.Ask(context.Background(), sess, "How does the workflow handle an advance payment?", "")
	require.NoError(t, err)
	assert.Nil(t, retriever.lastFilter, "exclusion keyword must suppress the keyword match")

	// Explicit selection is not suppressed by the exclusion term.
	sess = NewSession("s2")
	_, err = exec.Ask(context.Background(), sess, "workflow for an advance payment?", "workflow")
	require.NoError(t, err)
	assert.Equal(t,
		map[string]any{"document": map[string]any{"$in": []string{"workflow-overview"}}},
		retriever.lastFilter)
}

func TestNoFilterWithoutFocusOrKeyword(t *testing.T) {
	retriever := &fakeRetriever{}
	exec := newTestExecutor(&fakeEmbedder{}, retriever, &fakeCompleter{answer: "ok"}, ExecutorOptions{
		FocusRules: []FocusRule{
			{Name: "expenses", Keywords: []string{"expense"}, Documents: []string{"expense-guide"}},
		},
	})

	sess := NewSession("s1")
	_, err := exec.Ask(context.Background(), sess, "Where is the cafeteria?", "")
	require.NoError(t, err)
	assert.Nil(t, retriever.lastFilter)
}

func TestReferenceLinkAppendedOnce(t *testing.T) {
	ref := ReferenceLink{
		Keywords: []string{"support"},
		Link:     "https://support.example.com",
		Label:    "Support portal",
	}

	exec := newTestExecutor(&fakeEmbedder{}, &fakeRetriever{},
		&fakeCompleter{answer: "Contact the help desk."}, ExecutorOptions{RefLinks: []ReferenceLink{ref}})

	sess := NewSession("s1")
	ex, err := exec.Ask(context.Background(), sess, "How do I reach support?", "")
	require.NoError(t, err)
	assert.Contains(t, ex.Answer, "Support portal: https://support.example.com")

	// When the answer already carries the link it is not duplicated.
	exec = newTestExecutor(&fakeEmbedder{}, &fakeRetriever{},
		&fakeCompleter{answer: "Use https://support.example.com for help."},
		ExecutorOptions{RefLinks: []ReferenceLink{ref}})
	sess = NewSession("s2")
	ex, err = exec.Ask(context.Background(), sess, "How do I reach support?", "")
	require.NoError(t, err)
	assert.Equal(t, 1, countOccurrences(ex.Answer, ref.Link))
}

func TestReferenceLinkSuppressedByExclusion(t *testing.T) {
	ref := ReferenceLink{
		Keywords:        []string{"workflow"},
		ExcludeKeywords: []string{"advance payment"},
		Link:            "https://docs.example.com/workflow-overview",
		Label:           "Workflow overview",
	}
	exec := newTestExecutor(&fakeEmbedder{}, &fakeRetriever{},
		&fakeCompleter{answer: "It routes to your approver."},
		ExecutorOptions{RefLinks: []ReferenceLink{ref}})

	sess := NewSession("s1")
	ex, err := exec.Ask(context.Background(), sess, "workflow for an advance payment request?", "")
	require.NoError(t, err)
	assert.NotContains(t, ex.Answer, ref.Link)

	sess = NewSession("s2")
	ex, err = exec.Ask(context.Background(), sess, "how does the approval workflow work?", "")
	require.NoError(t, err)
	assert.Contains(t, ex.Answer, ref.Link)
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	exec := newTestExecutor(&fakeEmbedder{}, &fakeRetriever{}, &fakeCompleter{}, ExecutorOptions{})
	sess := NewSession("s1")
	_, err := exec.Ask(context.Background(), sess, "   ", "")
	require.Error(t, err)
	assert.Empty(t, sess.Exchanges())
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}
