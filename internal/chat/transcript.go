package chat

import (
	"encoding/json"
	"fmt"

	"github.com/mixelka/docsbot/pkg/models"
)

// TranscriptFile is the on-disk export format: the display transcript
// plus the raw history pairs the pipeline consumes.
type TranscriptFile struct {
	Display []models.Exchange `json:"display"`
	History []HistoryPair     `json:"history"`
}

// HistoryPair is one (question, answer) pair. Older exports wrote
// pairs as two-element arrays while some wrote objects; both forms
// unmarshal, and marshalling always produces the array form.
type HistoryPair [2]string

// UnmarshalJSON accepts ["q","a"] and {"question":"q","answer":"a"}.
func (p *HistoryPair) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) != 2 {
			return fmt.Errorf("history pair must have 2 elements, got %d", len(arr))
		}
		p[0], p[1] = arr[0], arr[1]
		return nil
	}

	var obj struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("history pair is neither array nor object: %w", err)
	}
	p[0], p[1] = obj.Question, obj.Answer
	return nil
}

// Export serializes the session transcript
func Export(sess *Session) ([]byte, error) {
	file := TranscriptFile{Display: sess.Exchanges()}
	for _, pair := range sess.History() {
		file.History = append(file.History, HistoryPair(pair))
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transcript: %w", err)
	}
	return data, nil
}

// Import replaces the content of sess with a previously exported
// transcript. When the file carries no history list, the pairs are
// rebuilt from the display transcript.
func Import(sess *Session, data []byte) error {
	var file TranscriptFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse transcript: %w", err)
	}

	history := make([][2]string, 0, len(file.History))
	for _, pair := range file.History {
		history = append(history, [2]string(pair))
	}
	if len(history) == 0 {
		for _, ex := range file.Display {
			history = append(history, [2]string{ex.Question, ex.Answer})
		}
	}

	sess.restore(file.Display, history)
	return nil
}
