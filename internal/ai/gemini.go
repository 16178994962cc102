package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"
)

// Fallback content served when generation fails or returns something we
// cannot parse. Learners should never see an empty daily card.
const (
	fallbackVerse        = "And whoever relies upon Allah - then He is sufficient for him. Indeed, Allah will accomplish His purpose."
	fallbackVerseSource  = "Quran 65:3"
	fallbackHadith       = "The best of people are those who benefit others."
	fallbackHadithSource = "Hadith - At-Tabarani"
)

const askSystemPrompt = `You are a knowledgeable Islamic scholar assistant. Answer questions about Islam based on the Quran and authentic Hadith. Always cite your sources. If you are not certain about authenticity, say so. Respond in JSON with the shape {"answer": "...", "sources": ["..."], "isAuthentic": true}.`

// Gemini asks Google's Gemini models and maps their output onto the
// Assistant contract.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Ask(ctx context.Context, question string) (Answer, error) {
	prompt := askSystemPrompt + "\n\nQuestion: " + question
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	text := resp.Text()
	var answer Answer
	if err := json.Unmarshal([]byte(extractJSON(text)), &answer); err != nil || answer.Answer == "" {
		// The model occasionally answers in prose despite the JSON
		// instruction. Keep the prose rather than failing the request.
		return Answer{Answer: strings.TrimSpace(text), Sources: []string{}, IsAuthentic: false}, nil
	}
	if answer.Sources == nil {
		answer.Sources = []string{}
	}
	return answer, nil
}

func (g *Gemini) DailyContent(ctx context.Context, contentType, language string) (ContentPiece, error) {
	var prompt string
	switch contentType {
	case "verse":
		prompt = fmt.Sprintf(`Provide one inspiring verse from the Quran in %s with its exact reference (surah and ayah number). Respond in JSON with the shape {"content": "...", "source": "Quran X:Y"}.`, languageName(language))
	case "hadith":
		prompt = fmt.Sprintf(`Provide one authentic hadith in %s with its source collection. Respond in JSON with the shape {"content": "...", "source": "..."}.`, languageName(language))
	default:
		return ContentPiece{}, fmt.Errorf("unknown content type %q", contentType)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		log.Printf("daily content generation failed (%s/%s): %v", contentType, language, err)
		return fallbackPiece(contentType), nil
	}

	var piece ContentPiece
	if err := json.Unmarshal([]byte(extractJSON(resp.Text())), &piece); err != nil || piece.Content == "" {
		log.Printf("daily content parse failed (%s/%s), using fallback", contentType, language)
		return fallbackPiece(contentType), nil
	}
	return piece, nil
}

func fallbackPiece(contentType string) ContentPiece {
	if contentType == "hadith" {
		return ContentPiece{Content: fallbackHadith, Source: fallbackHadithSource}
	}
	return ContentPiece{Content: fallbackVerse, Source: fallbackVerseSource}
}

// extractJSON strips markdown fences and surrounding prose so the payload
// can be unmarshalled even when the model decorates its output.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}

func languageName(code string) string {
	switch code {
	case "ar":
		return "Arabic"
	case "ur":
		return "Urdu"
	default:
		return "English"
	}
}

var _ Assistant = (*Gemini)(nil)
