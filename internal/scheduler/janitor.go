// Package scheduler runs the periodic question-cache sweep. Expired entries
// already read as misses; sweeping just keeps memory bounded between hits.
package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"exam-practice-service/internal/cache"
)

// Janitor periodically evicts expired question-cache entries.
type Janitor struct {
	scheduler *gocron.Scheduler
	questions *cache.QuestionCache
	interval  time.Duration
}

func NewJanitor(questions *cache.QuestionCache, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		scheduler: gocron.NewScheduler(time.UTC),
		questions: questions,
		interval:  interval,
	}
}

// Start schedules the sweep and returns immediately.
func (j *Janitor) Start() {
	if _, err := j.scheduler.Every(j.interval).Do(j.sweep); err != nil {
		log.Printf("schedule cache sweep: %v", err)
		return
	}
	j.scheduler.StartAsync()
}

// Stop cancels the scheduled sweep.
func (j *Janitor) Stop() {
	j.scheduler.Stop()
}

func (j *Janitor) sweep() {
	if dropped := j.questions.Sweep(); dropped > 0 {
		log.Printf("question cache sweep dropped %d expired entries", dropped)
	}
}
