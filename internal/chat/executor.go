// Package chat implements the chat-turn executor: one question in,
// one retrieval-augmented answer out, appended atomically to the
// session transcript.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mixelka/docsbot/internal/openai"
	"github.com/mixelka/docsbot/internal/pinecone"
	"github.com/mixelka/docsbot/pkg/models"
)

const systemPrompt = "You are a support assistant for the documentation below. " +
	"Answer using only the provided context. If the context does not " +
	"contain the answer, say so instead of guessing."

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever returns the nearest chunks for a vector
type Retriever interface {
	Query(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]pinecone.Match, error)
}

// Completer answers a conversation
type Completer interface {
	Complete(ctx context.Context, messages []openai.Message) (string, error)
}

// FocusRule narrows retrieval to a named subset of documents, either
// because the user selected the focus explicitly or because one of
// the keywords appears in the question. A keyword match is suppressed
// when any exclude keyword also appears; explicit selection is not.
type FocusRule struct {
	Name            string   `json:"name"`
	Keywords        []string `json:"keywords,omitempty"`
	ExcludeKeywords []string `json:"excludeKeywords,omitempty"`
	Documents       []string `json:"documents"`
}

// ReferenceLink is appended to an answer when the question mentions
// one of the keywords (and none of the exclude keywords) and the
// answer does not already carry the link.
type ReferenceLink struct {
	Keywords        []string `json:"keywords"`
	ExcludeKeywords []string `json:"excludeKeywords,omitempty"`
	Link            string   `json:"link"`
	Label           string   `json:"label,omitempty"`
}

// Executor runs one chat turn against the hosted pipeline
type Executor struct {
	embedder   Embedder
	retriever  Retriever
	completer  Completer
	topK       int
	focusRules []FocusRule
	refLinks   []ReferenceLink
	logger     *slog.Logger
}

// ExecutorOptions configures an Executor
type ExecutorOptions struct {
	TopK       int
	FocusRules []FocusRule
	RefLinks   []ReferenceLink
}

// NewExecutor creates an executor over the three pipeline stages
func NewExecutor(embedder Embedder, retriever Retriever, completer Completer, opts ExecutorOptions, logger *slog.Logger) *Executor {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	return &Executor{
		embedder:   embedder,
		retriever:  retriever,
		completer:  completer,
		topK:       opts.TopK,
		focusRules: opts.FocusRules,
		refLinks:   opts.RefLinks,
		logger:     logger.With("component", "executor"),
	}
}

// Ask answers question in the context of sess and appends the
// completed exchange. On any error the transcript is left untouched:
// either a full exchange is appended or none is.
func (e *Executor) Ask(ctx context.Context, sess *Session, question, focus string) (models.Exchange, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Exchange{}, fmt.Errorf("question is empty")
	}

	vector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return models.Exchange{}, fmt.Errorf("failed to embed question: %w", err)
	}

	filter := e.filterFor(question, focus)
	matches, err := e.retriever.Query(ctx, vector, e.topK, filter)
	if err != nil {
		return models.Exchange{}, fmt.Errorf("retrieval failed: %w", err)
	}

	answer, err := e.completer.Complete(ctx, buildMessages(question, sess.History(), matches))
	if err != nil {
		return models.Exchange{}, fmt.Errorf("completion failed: %w", err)
	}
	answer = e.applyReferenceLinks(question, answer)

	ex := models.Exchange{
		Question: question,
		Answer:   answer,
		Sources:  sourcesFrom(matches),
	}
	sess.Append(ex)

	e.logger.Info("chat turn completed", "session", sess.ID, "sources", len(ex.Sources))
	return ex, nil
}

// filterFor builds the metadata filter: an explicit focus wins,
// otherwise the first rule whose keyword appears in the question.
func (e *Executor) filterFor(question, focus string) map[string]any {
	rule := e.ruleFor(question, focus)
	if rule == nil {
		return nil
	}
	return map[string]any{"document": map[string]any{"$in": rule.Documents}}
}

func (e *Executor) ruleFor(question, focus string) *FocusRule {
	lower := strings.ToLower(question)
	for i := range e.focusRules {
		rule := &e.focusRules[i]
		if focus != "" && strings.EqualFold(rule.Name, focus) {
			return rule
		}
	}
	if focus != "" {
		return nil // unknown explicit focus: search everything
	}
	for i := range e.focusRules {
		rule := &e.focusRules[i]
		if containsAny(lower, rule.Keywords) && !containsAny(lower, rule.ExcludeKeywords) {
			return rule
		}
	}
	return nil
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// applyReferenceLinks appends a fixed link when the question hits a
// keyword and the answer does not already contain that link.
func (e *Executor) applyReferenceLinks(question, answer string) string {
	lower := strings.ToLower(question)
	for _, ref := range e.refLinks {
		if strings.Contains(answer, ref.Link) {
			continue
		}
		if !containsAny(lower, ref.Keywords) || containsAny(lower, ref.ExcludeKeywords) {
			continue
		}
		label := ref.Label
		if label == "" {
			label = "See also"
		}
		answer = answer + "\n\n" + label + ": " + ref.Link
	}
	return answer
}

func buildMessages(question string, history [][2]string, matches []pinecone.Match) []openai.Message {
	var b strings.Builder
	b.WriteString(systemPrompt)
	if len(matches) > 0 {
		b.WriteString("\n\nContext:\n")
		for _, m := range matches {
			if text, ok := m.Metadata["text"].(string); ok {
				b.WriteString("---\n")
				b.WriteString(text)
				b.WriteString("\n")
			}
		}
	}

	messages := []openai.Message{{Role: "system", Content: b.String()}}
	for _, pair := range history {
		messages = append(messages,
			openai.Message{Role: "user", Content: pair[0]},
			openai.Message{Role: "assistant", Content: pair[1]},
		)
	}
	return append(messages, openai.Message{Role: "user", Content: question})
}

// sourcesFrom extracts display metadata from the matches, one source
// per distinct document/link.
func sourcesFrom(matches []pinecone.Match) []models.Source {
	var sources []models.Source
	seen := make(map[string]bool)

	for _, m := range matches {
		doc, _ := m.Metadata["document"].(string)
		link, _ := m.Metadata["link"].(string)
		key := doc + "|" + link
		if doc == "" || seen[key] {
			continue
		}
		seen[key] = true

		src := models.Source{Document: doc, Link: link}
		if raw, ok := m.Metadata["sections"].([]any); ok {
			for _, s := range raw {
				if title, ok := s.(string); ok {
					src.Sections = append(src.Sections, title)
				}
			}
		}
		sources = append(sources, src)
	}
	return sources
}
