package app

import (
	"errors"
	"testing"
	"time"

	"trivia-live-service/internal/domain"

	"github.com/jonboulle/clockwork"
)

func testQuestion(t *testing.T, limit time.Duration) domain.Question {
	t.Helper()
	q, err := domain.NewQuestion("What is 2 + 2?", []string{"3", "4", "5", "6"}, 1, limit, "math")
	if err != nil {
		t.Fatalf("build question: %v", err)
	}
	return q
}

func TestScoringLatencyCurve(t *testing.T) {
	cases := []struct {
		latencyMs int64
		want      int
	}{
		{0, 150},
		{2000, 147},
		{15000, 125},
		{30000, 100},
		{45000, 100},
	}
	for _, tc := range cases {
		if got := scorePoints(tc.latencyMs, 30000); got != tc.want {
			t.Fatalf("latency %dms: expected %d points, got %d", tc.latencyMs, tc.want, got)
		}
	}
}

func TestSubmitAnswerRejections(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession(clock)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ann := s.AddPlayer("conn-1", "Ann")

	if err := s.SubmitAnswer(ann.ID, 1); !errors.Is(err, domain.ErrNoOpenQuestion) {
		t.Fatalf("expected no-open-question rejection, got %v", err)
	}

	if _, err := s.OpenQuestion(testQuestion(t, 30*time.Second)); err != nil {
		t.Fatalf("open question: %v", err)
	}

	if err := s.SubmitAnswer("nobody", 1); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected unknown-player rejection, got %v", err)
	}

	if err := s.SubmitAnswer(ann.ID, 1); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if err := s.SubmitAnswer(ann.ID, 2); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	// The first submission stands untouched.
	if len(s.responses) != 1 || s.responses[ann.ID].AnswerIndex != 1 {
		t.Fatalf("expected single original response, got %+v", s.responses)
	}
}

func TestProcessResultsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession(clock)
	_ = s.Start()
	ann := s.AddPlayer("conn-1", "Ann")
	bo := s.AddPlayer("conn-2", "Bo")

	if _, err := s.OpenQuestion(testQuestion(t, 30*time.Second)); err != nil {
		t.Fatalf("open question: %v", err)
	}
	clock.Advance(2 * time.Second)
	_ = s.SubmitAnswer(ann.ID, 1) // correct
	clock.Advance(3 * time.Second)
	_ = s.SubmitAnswer(bo.ID, 0) // incorrect

	first := s.ProcessResults()
	if first == nil {
		t.Fatalf("expected result from first pass")
	}
	if first.TotalResponses != 2 || first.TotalCorrect != 1 {
		t.Fatalf("expected 2 responses / 1 correct, got %d/%d", first.TotalResponses, first.TotalCorrect)
	}
	annScore := s.players[ann.ID].Score
	if annScore != 147 {
		t.Fatalf("expected Ann at 147 points for 2s latency, got %d", annScore)
	}
	if s.players[bo.ID].Score != 0 {
		t.Fatalf("expected Bo at 0 points, got %d", s.players[bo.ID].Score)
	}

	// A repeat call simulates the losing side of the timeout race: no state
	// change, same result handed back.
	second := s.ProcessResults()
	if second != first {
		t.Fatalf("expected repeated call to return the already computed result")
	}
	if s.players[ann.ID].Score != annScore || s.players[ann.ID].CorrectCount != 1 {
		t.Fatalf("repeat scoring mutated state: score=%d correct=%d", s.players[ann.ID].Score, s.players[ann.ID].CorrectCount)
	}
}

func TestNoAnswerEntriesScoreZero(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession(clock)
	_ = s.Start()
	ann := s.AddPlayer("conn-1", "Ann")
	bo := s.AddPlayer("conn-2", "Bo")

	_, _ = s.OpenQuestion(testQuestion(t, 30*time.Second))
	// Out-of-range index is accepted and scored incorrect.
	if err := s.SubmitAnswer(ann.ID, 99); err != nil {
		t.Fatalf("out-of-range submit: %v", err)
	}

	result := s.ProcessResults()
	if result.TotalResponses != 1 || result.TotalCorrect != 0 {
		t.Fatalf("expected 1 response / 0 correct, got %d/%d", result.TotalResponses, result.TotalCorrect)
	}
	if len(result.Outcomes) != 2 {
		t.Fatalf("expected an outcome per player, got %d", len(result.Outcomes))
	}
	for _, o := range result.Outcomes {
		if o.Points != 0 || o.Correct {
			t.Fatalf("expected zero points all around, got %+v", o)
		}
		if o.PlayerID == bo.ID && o.Answered {
			t.Fatalf("expected Bo recorded as no-answer")
		}
	}
}

func TestAllAnswered(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession(clock)
	_ = s.Start()

	if s.AllAnswered() {
		t.Fatalf("no open question: expected false")
	}
	_, _ = s.OpenQuestion(testQuestion(t, 30*time.Second))
	if s.AllAnswered() {
		t.Fatalf("zero connected players: expected false")
	}

	ann := s.AddPlayer("conn-1", "Ann")
	bo := s.AddPlayer("conn-2", "Bo")
	_ = s.SubmitAnswer(ann.ID, 1)
	if s.AllAnswered() {
		t.Fatalf("one of two answered: expected false")
	}

	// Disconnected players must not block completion.
	if _, ok := s.MarkDisconnected(bo.ConnectionID); !ok {
		t.Fatalf("expected Bo marked disconnected")
	}
	if !s.AllAnswered() {
		t.Fatalf("every connected player answered: expected true")
	}
}

func TestReconnectKeepsIdentity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession(clock)
	_ = s.Start()
	ann := s.AddPlayer("conn-1", "Ann")
	_, _ = s.OpenQuestion(testQuestion(t, 30*time.Second))
	_ = s.SubmitAnswer(ann.ID, 1)
	s.ProcessResults()

	_, _ = s.MarkDisconnected("conn-1")
	back := s.AddPlayer("conn-9", "Ann")
	if back.ID != ann.ID {
		t.Fatalf("expected stable id across reconnect, got %s vs %s", back.ID, ann.ID)
	}
	if back.Score != 150 || back.CorrectCount != 1 {
		t.Fatalf("expected score retained across reconnect, got %+v", back)
	}
	if !back.Connected || back.ConnectionID != "conn-9" {
		t.Fatalf("expected refreshed connection handle, got %+v", back)
	}

	// A removal firing after the reconnect must be a no-op.
	if s.RemoveIfStillDisconnected(ann.ID) {
		t.Fatalf("removal fired against a reconnected player")
	}

	// Without a reconnect the player is reaped and leaves the leaderboard.
	_, _ = s.MarkDisconnected("conn-9")
	if !s.RemoveIfStillDisconnected(ann.ID) {
		t.Fatalf("expected disconnected player to be removed")
	}
	if len(s.FinalResults().Leaderboard) != 0 {
		t.Fatalf("expected purged player out of final results")
	}
}

func TestFinalResultsRanking(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession(clock)
	ann := s.AddPlayer("conn-1", "Ann")
	clock.Advance(time.Second)
	bo := s.AddPlayer("conn-2", "Bo")
	clock.Advance(time.Second)
	cy := s.AddPlayer("conn-3", "Cy")
	_ = s.Start()

	s.players[ann.ID].Score = 100
	s.players[ann.ID].AnsweredCount = 2
	s.players[ann.ID].CorrectCount = 1
	s.players[bo.ID].Score = 100
	s.players[bo.ID].AnsweredCount = 2
	s.players[bo.ID].CorrectCount = 2
	// Cy never answered and must be excluded.
	s.players[cy.ID].Score = 0

	clock.Advance(90 * time.Second)
	final := s.FinalResults()
	if len(final.Leaderboard) != 2 {
		t.Fatalf("expected 2 ranked players, got %d", len(final.Leaderboard))
	}
	// Equal scores: Ann joined first and wins the tie.
	if final.Leaderboard[0].PlayerID != ann.ID || final.Leaderboard[0].Rank != 1 {
		t.Fatalf("expected Ann ranked first on join-time tie-break, got %+v", final.Leaderboard[0])
	}
	if final.Leaderboard[1].Accuracy != 1.0 {
		t.Fatalf("expected Bo accuracy 1.0, got %f", final.Leaderboard[1].Accuracy)
	}
	if final.Leaderboard[0].Accuracy != 0.5 {
		t.Fatalf("expected Ann accuracy 0.5, got %f", final.Leaderboard[0].Accuracy)
	}
	if final.Duration != 90*time.Second {
		t.Fatalf("expected 90s session duration, got %s", final.Duration)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession(clock)

	if _, err := s.OpenQuestion(testQuestion(t, time.Minute)); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected inactive rejection for open question, got %v", err)
	}
	if err := s.End(); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected inactive rejection for end, got %v", err)
	}

	ann := s.AddPlayer("conn-1", "Ann")
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(); !errors.Is(err, domain.ErrSessionActive) {
		t.Fatalf("expected double start rejection, got %v", err)
	}

	_, _ = s.OpenQuestion(testQuestion(t, time.Minute))
	_ = s.SubmitAnswer(ann.ID, 1)
	s.ProcessResults()

	if err := s.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	// Scores survive the end for a final leaderboard query.
	if s.players[ann.ID].Score == 0 {
		t.Fatalf("expected score kept after end")
	}
	if s.QuestionOpen() {
		t.Fatalf("expected open question cleared on end")
	}

	// Restart after end resets the ledger.
	if err := s.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if s.players[ann.ID].Score != 0 {
		t.Fatalf("expected scores reset on restart")
	}

	s.Reset()
	if len(s.players) != 0 || s.Active() {
		t.Fatalf("expected reset to wipe roster and deactivate")
	}
}
