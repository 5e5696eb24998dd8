package jobs

import (
	"context"
	"testing"
	"time"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/scheduler"

	"github.com/jonboulle/clockwork"
)

func newTestCoordinator(t *testing.T) (*app.Coordinator, func()) {
	t.Helper()
	clock := clockwork.NewRealClock()
	timers := scheduler.New(clock)
	c := app.NewCoordinator(clock, timers, app.Policy{})
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	return c, func() {
		cancel()
		timers.Shutdown()
	}
}

func waitEvent(t *testing.T, c *app.Coordinator, typ string) app.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-c.Events():
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", typ)
		}
	}
}

func TestRunnerRegistersAllJobs(t *testing.T) {
	coordinator, stop := newTestCoordinator(t)
	defer stop()

	runner, err := NewRunner(coordinator, Schedules{})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if runner.Entries() != 3 {
		t.Fatalf("expected 3 scheduled jobs, got %d", runner.Entries())
	}
}

func TestRunnerRejectsBadSchedule(t *testing.T) {
	coordinator, stop := newTestCoordinator(t)
	defer stop()

	if _, err := NewRunner(coordinator, Schedules{Reminder: "not a cron expr"}); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}

func TestReminderBroadcastsNotification(t *testing.T) {
	coordinator, stop := newTestCoordinator(t)
	defer stop()

	runner, err := NewRunner(coordinator, Schedules{})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	runner.remind()

	waitEvent(t, coordinator, app.EventNotification)
}

func TestWeeklyResetWipesSession(t *testing.T) {
	coordinator, stop := newTestCoordinator(t)
	defer stop()

	runner, err := NewRunner(coordinator, Schedules{})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	_, _ = coordinator.Join("conn-1", "Ann")
	if _, err := coordinator.StartSession(); err != nil {
		t.Fatalf("start session: %v", err)
	}

	runner.weeklyReset()

	snap := coordinator.Snapshot()
	if snap.Active || len(snap.Players) != 0 {
		t.Fatalf("expected session wiped by weekly reset, got %+v", snap)
	}
	waitEvent(t, coordinator, app.EventNotification)
}
