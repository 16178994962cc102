package jobs

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/SyedMohammedSameer/Iqra/internal/ai"
	"github.com/SyedMohammedSameer/Iqra/internal/config"
	"github.com/SyedMohammedSameer/Iqra/internal/model"
	"github.com/SyedMohammedSameer/Iqra/internal/repository"
)

var contentTypes = []string{"verse", "hadith"}

// DailyContentJob pregenerates the day's verse and hadith for every
// configured language so the first morning request is a cache hit.
type DailyContentJob struct {
	store     repository.Store
	assistant ai.Assistant
	languages []string
}

func NewDailyContentJob(store repository.Store, assistant ai.Assistant, languages []string) *DailyContentJob {
	return &DailyContentJob{store: store, assistant: assistant, languages: languages}
}

// Start schedules the job and stops it when ctx is cancelled. Failures are
// logged and left for the next tick.
func Start(ctx context.Context, cfg config.Config, store repository.Store, assistant ai.Assistant) error {
	if !cfg.DailyContentJobEnabled || assistant == nil {
		return nil
	}

	job := NewDailyContentJob(store, assistant, cfg.DailyContentLanguages)
	scheduler := cron.New()
	_, err := scheduler.AddFunc(cfg.DailyContentCron, func() {
		runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := job.Run(runCtx, time.Now().UTC()); err != nil {
			log.Printf("daily content job: %v", err)
		}
	})
	if err != nil {
		return err
	}

	scheduler.Start()
	go func() {
		<-ctx.Done()
		<-scheduler.Stop().Done()
	}()
	return nil
}

// Run generates whatever is missing for the given day. Content already
// present is never regenerated, so the job is safe to rerun.
func (j *DailyContentJob) Run(ctx context.Context, day time.Time) error {
	var firstErr error
	for _, language := range j.languages {
		existing, err := j.store.GetDailyContent(ctx, day, language)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		present := map[string]bool{}
		for _, content := range existing {
			present[content.Type] = true
		}

		for _, contentType := range contentTypes {
			if present[contentType] {
				continue
			}
			piece, err := j.assistant.DailyContent(ctx, contentType, language)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			content := model.DailyContent{
				ID:       uuid.NewString(),
				Type:     contentType,
				Content:  piece.Content,
				Source:   piece.Source,
				Language: language,
				Date:     day,
			}
			if err := j.store.CreateDailyContent(ctx, content); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
