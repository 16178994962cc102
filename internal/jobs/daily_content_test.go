package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/SyedMohammedSameer/Iqra/internal/ai"
	"github.com/SyedMohammedSameer/Iqra/internal/repository"
)

type countingAssistant struct {
	calls int
}

func (c *countingAssistant) Ask(_ context.Context, _ string) (ai.Answer, error) {
	return ai.Answer{}, nil
}

func (c *countingAssistant) DailyContent(_ context.Context, contentType, language string) (ai.ContentPiece, error) {
	c.calls++
	return ai.ContentPiece{Content: contentType + "/" + language, Source: "src"}, nil
}

func TestDailyContentJobGeneratesPerLanguage(t *testing.T) {
	store := repository.NewMemory()
	assistant := &countingAssistant{}
	job := NewDailyContentJob(store, assistant, []string{"en", "ar"})
	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	if err := job.Run(context.Background(), day); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if assistant.calls != 4 {
		t.Fatalf("expected 4 generations (2 types x 2 languages), got %d", assistant.calls)
	}

	for _, language := range []string{"en", "ar"} {
		contents, err := store.GetDailyContent(context.Background(), day, language)
		if err != nil {
			t.Fatalf("get error: %v", err)
		}
		if len(contents) != 2 {
			t.Fatalf("%s: expected 2 entries, got %d", language, len(contents))
		}
	}
}

func TestDailyContentJobSkipsExisting(t *testing.T) {
	store := repository.NewMemory()
	assistant := &countingAssistant{}
	job := NewDailyContentJob(store, assistant, []string{"en"})
	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	if err := job.Run(context.Background(), day); err != nil {
		t.Fatalf("first run error: %v", err)
	}
	if err := job.Run(context.Background(), day); err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if assistant.calls != 2 {
		t.Fatalf("rerun regenerated content: %d calls", assistant.calls)
	}
}
