package models

// Source describes a document chunk that supported an answer
type Source struct {
	Document string   `json:"document"`
	Sections []string `json:"sections,omitempty"`
	Link     string   `json:"link,omitempty"`
}

// Exchange is one completed question/answer turn in a transcript
type Exchange struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources,omitempty"`
}
