package app

import (
	"sort"
	"time"

	"trivia-live-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Session is the live quiz state machine: roster, open question, response set
// and score ledger. It is deliberately lock-free and timer-free; the
// Coordinator serializes all access through its command loop and owns every
// timing decision, which keeps this type unit-testable without a network or
// scheduler harness.
type Session struct {
	clock clockwork.Clock

	active         bool
	players        map[string]*domain.Player
	open           *domain.OpenQuestion
	responses      map[string]domain.Response
	questionsAsked int
	lastResult     *domain.QuestionResult
	startedAt      time.Time
}

func NewSession(clock clockwork.Clock) *Session {
	return &Session{
		clock:     clock,
		players:   make(map[string]*domain.Player),
		responses: make(map[string]domain.Response),
	}
}

// Active reports whether a quiz is currently running.
func (s *Session) Active() bool { return s.active }

// QuestionOpen reports whether a question is currently accepting answers.
func (s *Session) QuestionOpen() bool { return s.open != nil }

// OpenID returns the identity of the currently open question, or "" when none
// is open. Timer callbacks use it to detect staleness.
func (s *Session) OpenID() string {
	if s.open == nil {
		return ""
	}
	return s.open.OpenID
}

// Start begins a new quiz run. Scores and per-question state from a previous
// run are wiped; the roster itself is kept so players who joined early carry over.
func (s *Session) Start() error {
	if s.active {
		return domain.ErrSessionActive
	}
	s.active = true
	s.startedAt = s.clock.Now()
	s.questionsAsked = 0
	s.open = nil
	s.responses = make(map[string]domain.Response)
	s.lastResult = nil
	for _, p := range s.players {
		p.Score = 0
		p.CorrectCount = 0
		p.AnsweredCount = 0
	}
	return nil
}

// End stops the quiz. Scores stay intact for a final leaderboard query.
func (s *Session) End() error {
	if !s.active {
		return domain.ErrSessionNotActive
	}
	s.active = false
	s.open = nil
	s.responses = make(map[string]domain.Response)
	return nil
}

// Reset returns the session to its zero state, roster included.
func (s *Session) Reset() {
	s.active = false
	s.players = make(map[string]*domain.Player)
	s.open = nil
	s.responses = make(map[string]domain.Response)
	s.questionsAsked = 0
	s.lastResult = nil
	s.startedAt = time.Time{}
}

// AddPlayer registers a player, idempotently by display name: a rejoining name
// keeps its id and scores and only refreshes the transport handle. Joining is
// allowed in any session state.
func (s *Session) AddPlayer(connectionID, name string) domain.Player {
	for _, p := range s.players {
		if p.Name == name {
			p.ConnectionID = connectionID
			p.Connected = true
			return *p
		}
	}
	p := &domain.Player{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Name:         name,
		JoinedAt:     s.clock.Now(),
		Connected:    true,
	}
	s.players[p.ID] = p
	return *p
}

// MarkDisconnected flags the player owning connectionID as disconnected and
// returns it. The player stays on the roster; removal is a separate, delayed
// decision made by the Coordinator.
func (s *Session) MarkDisconnected(connectionID string) (domain.Player, bool) {
	for _, p := range s.players {
		if p.ConnectionID == connectionID {
			p.Connected = false
			return *p, true
		}
	}
	return domain.Player{}, false
}

// RemoveIfStillDisconnected drops the player iff they have not reconnected.
// Connectivity is checked now, at fire time, so a removal scheduled before a
// reconnect is a no-op.
func (s *Session) RemoveIfStillDisconnected(playerID string) bool {
	p, ok := s.players[playerID]
	if !ok || p.Connected {
		return false
	}
	delete(s.players, playerID)
	return true
}

// PurgeDisconnected drops every currently disconnected player and returns how
// many were removed.
func (s *Session) PurgeDisconnected() int {
	removed := 0
	for id, p := range s.players {
		if !p.Connected {
			delete(s.players, id)
			removed++
		}
	}
	return removed
}

// OpenQuestion publishes a question for answering. Any previously open
// question is discarded unscored, matching operator-driven replacement. The
// returned OpenID names this opening for timer bookkeeping.
func (s *Session) OpenQuestion(q domain.Question) (domain.OpenQuestion, error) {
	if !s.active {
		return domain.OpenQuestion{}, domain.ErrSessionNotActive
	}
	open := domain.OpenQuestion{
		Question: q,
		OpenID:   uuid.NewString(),
		OpenedAt: s.clock.Now(),
	}
	s.open = &open
	s.responses = make(map[string]domain.Response)
	s.lastResult = nil
	s.questionsAsked++
	return open, nil
}

// SubmitAnswer records a player's answer to the open question. Expected
// rejections come back as sentinel errors, never panics. A second submission
// by the same player is refused and the first stands. An out-of-range index is
// accepted and later scored as incorrect.
func (s *Session) SubmitAnswer(playerID string, answerIndex int) error {
	if s.open == nil {
		return domain.ErrNoOpenQuestion
	}
	p, ok := s.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	if _, answered := s.responses[playerID]; answered {
		return domain.ErrAlreadyAnswered
	}
	s.responses[playerID] = domain.Response{
		PlayerID:    playerID,
		AnswerIndex: answerIndex,
		SubmittedAt: s.clock.Now(),
	}
	p.AnsweredCount++
	return nil
}

// AllAnswered reports whether every connected player has responded to the
// open question. Disconnected players are excluded from the denominator so
// they cannot block early completion; it is false with zero connected players.
func (s *Session) AllAnswered() bool {
	if s.open == nil {
		return false
	}
	connected := 0
	for _, p := range s.players {
		if !p.Connected {
			continue
		}
		connected++
		if _, ok := s.responses[p.ID]; !ok {
			return false
		}
	}
	return connected > 0
}

// ProcessResults scores the open question and closes it. This is the single
// transition that must happen at most once per opened question: the first call
// clears the open question, so a repeat call (the losing side of the
// timeout-vs-early-completion race) observes none and simply returns the
// already computed result.
func (s *Session) ProcessResults() *domain.QuestionResult {
	if s.open == nil {
		return s.lastResult
	}
	open := *s.open
	limitMs := open.TimeLimit.Milliseconds()

	result := domain.QuestionResult{
		Question: open.Question.View(),
		Outcomes: make([]domain.PlayerOutcome, 0, len(s.players)),
	}

	for _, resp := range s.responses {
		p, ok := s.players[resp.PlayerID]
		if !ok {
			continue
		}
		latencyMs := resp.SubmittedAt.Sub(open.OpenedAt).Milliseconds()
		correct := resp.AnswerIndex == open.CorrectIndex
		points := 0
		if correct {
			points = scorePoints(latencyMs, limitMs)
			p.Score += points
			p.CorrectCount++
			result.TotalCorrect++
		}
		result.TotalResponses++
		result.Outcomes = append(result.Outcomes, domain.PlayerOutcome{
			PlayerID:    p.ID,
			PlayerName:  p.Name,
			Answered:    true,
			AnswerIndex: resp.AnswerIndex,
			Correct:     correct,
			Points:      points,
			LatencyMs:   latencyMs,
		})
	}

	for _, p := range s.players {
		if _, ok := s.responses[p.ID]; ok || !p.Connected {
			continue
		}
		result.Outcomes = append(result.Outcomes, domain.PlayerOutcome{
			PlayerID:   p.ID,
			PlayerName: p.Name,
		})
	}

	sort.Slice(result.Outcomes, func(i, j int) bool {
		if result.Outcomes[i].Points != result.Outcomes[j].Points {
			return result.Outcomes[i].Points > result.Outcomes[j].Points
		}
		return result.Outcomes[i].PlayerName < result.Outcomes[j].PlayerName
	})

	s.lastResult = &result
	s.open = nil
	return &result
}

// scorePoints awards a flat 100 for a correct answer plus a speed bonus that
// decays linearly from 50 to 0 across the question's time limit.
func scorePoints(latencyMs, limitMs int64) int {
	if limitMs <= 0 {
		return 100
	}
	bonus := 50 - int(latencyMs*50/limitMs)
	if bonus < 0 {
		bonus = 0
	}
	return 100 + bonus
}

// LastResult returns the most recent scoring snapshot, nil when no question
// has been scored since the last opening.
func (s *Session) LastResult() *domain.QuestionResult {
	return s.lastResult
}

// Snapshot produces a consistent copy-out view for broadcast and status
// queries; mutating it cannot touch live state. The answer key is withheld.
func (s *Session) Snapshot() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		Active:         s.active,
		Players:        make([]domain.Player, 0, len(s.players)),
		ResponseCount:  len(s.responses),
		QuestionsAsked: s.questionsAsked,
	}
	for _, p := range s.players {
		snap.Players = append(snap.Players, *p)
	}
	sort.Slice(snap.Players, func(i, j int) bool {
		if snap.Players[i].Score != snap.Players[j].Score {
			return snap.Players[i].Score > snap.Players[j].Score
		}
		return snap.Players[i].Name < snap.Players[j].Name
	})
	if s.open != nil {
		view := s.open.Question.View()
		snap.OpenQuestion = &view
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		snap.StartedAt = &started
	}
	return snap
}

// FinalResults ranks players who answered at least once by descending score,
// ties broken by earlier join time.
func (s *Session) FinalResults() domain.FinalResults {
	ranked := make([]*domain.Player, 0, len(s.players))
	for _, p := range s.players {
		if p.AnsweredCount > 0 {
			ranked = append(ranked, p)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].JoinedAt.Before(ranked[j].JoinedAt)
	})

	final := domain.FinalResults{
		TotalQuestions: s.questionsAsked,
		TotalPlayers:   len(s.players),
		Leaderboard:    make([]domain.RankedPlayer, 0, len(ranked)),
	}
	for i, p := range ranked {
		accuracy := 0.0
		if p.AnsweredCount > 0 {
			accuracy = float64(p.CorrectCount) / float64(p.AnsweredCount)
		}
		final.Leaderboard = append(final.Leaderboard, domain.RankedPlayer{
			Rank:          i + 1,
			PlayerID:      p.ID,
			Name:          p.Name,
			Score:         p.Score,
			CorrectCount:  p.CorrectCount,
			AnsweredCount: p.AnsweredCount,
			Accuracy:      accuracy,
		})
	}
	if !s.startedAt.IsZero() {
		final.Duration = s.clock.Now().Sub(s.startedAt)
	}
	return final
}
