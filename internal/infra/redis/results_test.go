package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"trivia-live-service/internal/domain"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestResultStoreRetention(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewResultStore(newClient(mr), 10*time.Minute)

	final := domain.FinalResults{
		TotalQuestions: 3,
		TotalPlayers:   2,
		Leaderboard: []domain.RankedPlayer{
			{Rank: 1, PlayerID: "p1", Name: "Ann", Score: 420, AnsweredCount: 3, CorrectCount: 3, Accuracy: 1},
		},
		Duration: 5 * time.Minute,
	}
	if err := store.SaveFinal(context.Background(), final); err != nil {
		t.Fatalf("save final: %v", err)
	}

	got, err := store.LatestFinal(context.Background())
	if err != nil {
		t.Fatalf("latest final: %v", err)
	}
	if len(got.Leaderboard) != 1 || got.Leaderboard[0].Score != 420 {
		t.Fatalf("expected retained leaderboard, got %+v", got)
	}

	// The retention window is a redis TTL; once it lapses the results are gone.
	mr.FastForward(11 * time.Minute)
	if _, err := store.LatestFinal(context.Background()); !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected results purged after retention, got %v", err)
	}
}
