package jobs

import (
	"fmt"

	"trivia-live-service/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Schedules holds the cron expressions for the operational jobs.
type Schedules struct {
	Reminder    string
	WeeklyReset string
	Cleanup     string
}

func (s Schedules) withDefaults() Schedules {
	if s.Reminder == "" {
		s.Reminder = "0 8 * * *"
	}
	if s.WeeklyReset == "" {
		s.WeeklyReset = "0 0 * * 0"
	}
	if s.Cleanup == "" {
		s.Cleanup = "0 * * * *"
	}
	return s
}

// Runner owns the periodic operational jobs around a session: the daily
// reminder broadcast, the weekly leaderboard reset and the hourly cleanup of
// long-disconnected players. All of them act on the session only through the
// coordinator's public entry points.
type Runner struct {
	cron        *cron.Cron
	coordinator *app.Coordinator
}

func NewRunner(coordinator *app.Coordinator, schedules Schedules) (*Runner, error) {
	schedules = schedules.withDefaults()
	r := &Runner{
		cron:        cron.New(),
		coordinator: coordinator,
	}
	if _, err := r.cron.AddFunc(schedules.Reminder, r.remind); err != nil {
		return nil, fmt.Errorf("reminder schedule: %w", err)
	}
	if _, err := r.cron.AddFunc(schedules.WeeklyReset, r.weeklyReset); err != nil {
		return nil, fmt.Errorf("weekly reset schedule: %w", err)
	}
	if _, err := r.cron.AddFunc(schedules.Cleanup, r.cleanup); err != nil {
		return nil, fmt.Errorf("cleanup schedule: %w", err)
	}
	return r, nil
}

// Start begins running the jobs on their schedules.
func (r *Runner) Start() {
	r.cron.Start()
	log.Info().Int("jobs", len(r.cron.Entries())).Msg("cron jobs started")
}

// Stop halts scheduling and waits for any running job to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	log.Info().Msg("cron jobs stopped")
}

// Entries exposes the scheduled jobs, mainly for tests.
func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

func (r *Runner) remind() {
	r.coordinator.Notify("reminder", "Good morning! Ready for today's quiz challenge?")
}

func (r *Runner) weeklyReset() {
	final := r.coordinator.FinalResults()
	top := final.Leaderboard
	if len(top) > 3 {
		top = top[:3]
	}
	for _, p := range top {
		log.Info().Str("player", p.Name).Int("score", p.Score).Int("rank", p.Rank).Msg("weekly winner")
	}
	r.coordinator.ResetSession()
	r.coordinator.Notify("reset", "Weekly leaderboard has been reset! New week, new challenges!")
}

func (r *Runner) cleanup() {
	if removed := r.coordinator.PurgeDisconnected(); removed > 0 {
		log.Info().Int("removed", removed).Msg("cleanup removed inactive players")
	}
}
