package ai

import "context"

// Answer is a grounded response to a learner's question.
type Answer struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	IsAuthentic bool     `json:"isAuthentic"`
}

// ContentPiece is a single generated verse or hadith with its citation.
type ContentPiece struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Assistant answers learner questions and generates daily content.
type Assistant interface {
	Ask(ctx context.Context, question string) (Answer, error)
	DailyContent(ctx context.Context, contentType, language string) (ContentPiece, error)
}
