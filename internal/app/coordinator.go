package app

import (
	"context"
	"time"

	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/scheduler"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Event is an outbound message for the gateway to deliver. An empty TargetConn
// means broadcast to every connection; otherwise the event goes to that
// connection only.
type Event struct {
	Type       string `json:"type"`
	Payload    any    `json:"payload"`
	TargetConn string `json:"-"`
}

// Event types placed on the outbound queue.
const (
	EventSessionState    = "session-state"
	EventQuestionOpened  = "question-opened"
	EventQuestionResults = "question-results"
	EventPlayerJoined    = "player-joined"
	EventNotification    = "notification"
)

// QuestionBank loads operator-curated question sets from cache/backing store.
type QuestionBank interface {
	GetSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// ResultStore persists final leaderboards for a bounded retention window.
type ResultStore interface {
	SaveFinal(ctx context.Context, final domain.FinalResults) error
}

// Policy holds the session timing knobs. Zero values fall back to the
// defaults in withDefaults.
type Policy struct {
	// ReconnectGrace is how long a disconnected player stays on the roster
	// before being reaped.
	ReconnectGrace time.Duration
	// SettleDelay is the short pause after every connected player has
	// answered, letting near-simultaneous submissions land before scoring.
	SettleDelay time.Duration
	// DefaultTimeLimit applies to pushed questions without an explicit limit.
	DefaultTimeLimit time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.ReconnectGrace == 0 {
		p.ReconnectGrace = 5 * time.Minute
	}
	if p.SettleDelay == 0 {
		p.SettleDelay = time.Second
	}
	if p.DefaultTimeLimit == 0 {
		p.DefaultTimeLimit = domain.DefaultTimeLimit
	}
	return p
}

// Coordinator drives the Session through a single-writer command loop: public
// methods enqueue closures, Run executes them one at a time, and outbound
// events land on a buffered queue the gateway drains. Timer callbacks feed the
// same queue, so no two session mutations ever interleave.
//
// Two independent sources race to close each question: the wall-clock timeout
// and the early-completion settle timer. Both funnel into finishQuestion,
// which checks the question's open id on the loop; the losing source sees a
// changed id and does nothing, and the winner cancels the sibling timer.
type Coordinator struct {
	session *Session
	timers  *scheduler.Scheduler
	clock   clockwork.Clock
	policy  Policy

	bank    QuestionBank
	setID   string
	cursor  int
	results ResultStore

	cmds   chan func()
	events chan Event
	done   chan struct{}
}

func NewCoordinator(clock clockwork.Clock, timers *scheduler.Scheduler, policy Policy) *Coordinator {
	return &Coordinator{
		session: NewSession(clock),
		timers:  timers,
		clock:   clock,
		policy:  policy.withDefaults(),
		cmds:    make(chan func(), 64),
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
	}
}

// SetBank wires a question bank so next-question can pull from the configured set.
func (c *Coordinator) SetBank(bank QuestionBank, setID string) {
	c.bank = bank
	c.setID = setID
}

// SetResultStore wires persistence for final leaderboards on session end.
func (c *Coordinator) SetResultStore(store ResultStore) {
	c.results = store
}

// Events returns the outbound queue. The gateway must drain it.
func (c *Coordinator) Events() <-chan Event { return c.events }

// Run executes queued commands until ctx is cancelled. All session mutation
// happens on this goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.cmds:
			fn()
		}
	}
}

// do runs fn on the command loop and waits for it to complete.
func (c *Coordinator) do(fn func()) {
	ran := make(chan struct{})
	select {
	case c.cmds <- func() {
		defer close(ran)
		fn()
	}:
	case <-c.done:
		return
	}
	select {
	case <-ran:
	case <-c.done:
	}
}

func (c *Coordinator) emit(e Event) {
	select {
	case c.events <- e:
	default:
		log.Warn().Str("event", e.Type).Msg("outbound queue full, dropping event")
	}
}

// StartSession begins a quiz run and broadcasts the fresh state.
func (c *Coordinator) StartSession() (domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	var err error
	c.do(func() {
		if err = c.session.Start(); err != nil {
			return
		}
		c.cursor = 0
		log.Info().Msg("quiz session started")
		snap = c.session.Snapshot()
		c.emit(Event{Type: EventSessionState, Payload: snap})
	})
	return snap, err
}

// EndSession stops the quiz, cancels question-lifecycle timers and returns the
// final leaderboard. Scores stay queryable until the next start or reset.
func (c *Coordinator) EndSession(ctx context.Context) (domain.FinalResults, error) {
	var final domain.FinalResults
	var err error
	c.do(func() {
		openID := c.session.OpenID()
		if err = c.session.End(); err != nil {
			return
		}
		if openID != "" {
			c.timers.CancelName(timeoutTimer(openID))
			c.timers.CancelName(settleTimer(openID))
		}
		final = c.session.FinalResults()
		log.Info().Int("players", final.TotalPlayers).Int("questions", final.TotalQuestions).Msg("quiz session ended")
		c.emit(Event{Type: EventSessionState, Payload: c.session.Snapshot()})
	})
	if err != nil {
		return final, err
	}
	if c.results != nil {
		if serr := c.results.SaveFinal(ctx, final); serr != nil {
			log.Error().Err(serr).Msg("persisting final results failed")
		}
	}
	return final, nil
}

// ResetSession wipes the session back to its zero state, roster included, and
// cancels every timer tied to it.
func (c *Coordinator) ResetSession() {
	c.do(func() {
		openID := c.session.OpenID()
		if openID != "" {
			c.timers.CancelName(timeoutTimer(openID))
			c.timers.CancelName(settleTimer(openID))
		}
		for _, p := range c.session.Snapshot().Players {
			c.timers.CancelName(removalTimer(p.ID))
		}
		c.session.Reset()
		c.cursor = 0
		log.Info().Msg("quiz session reset")
		c.emit(Event{Type: EventSessionState, Payload: c.session.Snapshot()})
	})
}

// Join registers or reconnects a player and returns it with a state snapshot.
// The player-joined event goes to the joining connection only.
func (c *Coordinator) Join(connectionID, name string) (domain.Player, domain.SessionSnapshot) {
	var player domain.Player
	var snap domain.SessionSnapshot
	c.do(func() {
		player = c.session.AddPlayer(connectionID, name)
		// A pending removal for a reconnecting player is stale now.
		c.timers.CancelName(removalTimer(player.ID))
		snap = c.session.Snapshot()
		log.Info().Str("player", player.Name).Str("player_id", player.ID).Msg("player joined")
		c.emit(Event{Type: EventPlayerJoined, TargetConn: connectionID, Payload: map[string]any{
			"player":       player,
			"sessionState": snap,
		}})
		c.emit(Event{Type: EventSessionState, Payload: snap})
	})
	return player, snap
}

// Leave marks the player behind connectionID disconnected and schedules the
// delayed roster removal. The removal checks connectivity when it fires, so a
// reconnect in the meantime wins.
func (c *Coordinator) Leave(connectionID string) {
	c.do(func() {
		player, ok := c.session.MarkDisconnected(connectionID)
		if !ok {
			return
		}
		log.Info().Str("player", player.Name).Msg("player disconnected")
		playerID := player.ID
		c.timers.Schedule(removalTimer(playerID), c.policy.ReconnectGrace, func() {
			c.reapPlayer(playerID)
		})
		c.emit(Event{Type: EventSessionState, Payload: c.session.Snapshot()})
	})
}

func (c *Coordinator) reapPlayer(playerID string) {
	c.do(func() {
		if !c.session.RemoveIfStillDisconnected(playerID) {
			return
		}
		log.Info().Str("player_id", playerID).Msg("player removed after reconnect grace")
		c.emit(Event{Type: EventSessionState, Payload: c.session.Snapshot()})
	})
}

// PushQuestion opens a question for answers and schedules its wall-clock
// timeout. An already-open question is replaced unscored and its timers
// cancelled.
func (c *Coordinator) PushQuestion(q domain.Question) error {
	if q.TimeLimit == 0 {
		q.TimeLimit = c.policy.DefaultTimeLimit
	}
	var err error
	c.do(func() {
		if prev := c.session.OpenID(); prev != "" {
			c.timers.CancelName(timeoutTimer(prev))
			c.timers.CancelName(settleTimer(prev))
		}
		var open domain.OpenQuestion
		open, err = c.session.OpenQuestion(q)
		if err != nil {
			return
		}
		log.Info().Str("question", q.Text).Int("time_limit_s", int(q.TimeLimit/time.Second)).Msg("question opened")
		openID := open.OpenID
		c.timers.Schedule(timeoutTimer(openID), q.TimeLimit, func() {
			c.finishQuestion(openID, "timeout")
		})
		c.emit(Event{Type: EventQuestionOpened, Payload: open.Question.View()})
		c.emit(Event{Type: EventSessionState, Payload: c.session.Snapshot()})
	})
	return err
}

// NextQuestion pulls the next unused question from the configured bank set and
// pushes it.
func (c *Coordinator) NextQuestion(ctx context.Context) error {
	if c.bank == nil {
		return domain.ErrSetNotFound
	}
	set, err := c.bank.GetSet(ctx, c.setID)
	if err != nil {
		return err
	}
	var q domain.Question
	picked := false
	c.do(func() {
		if c.cursor < len(set.Questions) {
			q = set.Questions[c.cursor]
			c.cursor++
			picked = true
		}
	})
	if !picked {
		return domain.ErrSetExhausted
	}
	return c.PushQuestion(q)
}

// SubmitAnswer records a player's answer. When every connected player has
// answered it schedules the early-completion pass after the settle delay.
// Expected failures (no open question, unknown player, duplicate) come back as
// sentinel errors and leave state untouched.
func (c *Coordinator) SubmitAnswer(playerID string, answerIndex int) error {
	var err error
	c.do(func() {
		if err = c.session.SubmitAnswer(playerID, answerIndex); err != nil {
			return
		}
		c.emit(Event{Type: EventSessionState, Payload: c.session.Snapshot()})
		if c.session.AllAnswered() {
			openID := c.session.OpenID()
			c.timers.Schedule(settleTimer(openID), c.policy.SettleDelay, func() {
				c.finishQuestion(openID, "all-answered")
			})
		}
	})
	return err
}

// finishQuestion is the joint target of the timeout and early-completion
// timers. Exactly one invocation per open id scores the question; a stale fire
// for a question that is no longer open is an expected race outcome and a
// silent no-op.
func (c *Coordinator) finishQuestion(openID, source string) {
	c.do(func() {
		if c.session.OpenID() != openID {
			log.Debug().Str("source", source).Str("open_id", openID).Msg("stale question close ignored")
			return
		}
		result := c.session.ProcessResults()
		c.timers.CancelName(timeoutTimer(openID))
		c.timers.CancelName(settleTimer(openID))
		log.Info().
			Str("source", source).
			Int("responses", result.TotalResponses).
			Int("correct", result.TotalCorrect).
			Msg("question closed")
		c.emit(Event{Type: EventQuestionResults, Payload: result})
		c.emit(Event{Type: EventSessionState, Payload: c.session.Snapshot()})
	})
}

// Notify broadcasts an operational notification on behalf of scheduling
// collaborators (reminders, resets).
func (c *Coordinator) Notify(kind, message string) {
	c.emit(Event{Type: EventNotification, Payload: domain.Notification{
		Type:      kind,
		Message:   message,
		Timestamp: c.clock.Now(),
	}})
}

// PurgeDisconnected drops every currently disconnected player immediately,
// used by the periodic cleanup job.
func (c *Coordinator) PurgeDisconnected() int {
	removed := 0
	c.do(func() {
		removed = c.session.PurgeDisconnected()
		if removed > 0 {
			log.Info().Int("removed", removed).Msg("purged disconnected players")
			c.emit(Event{Type: EventSessionState, Payload: c.session.Snapshot()})
		}
	})
	return removed
}

// Snapshot returns a consistent copy of the session state.
func (c *Coordinator) Snapshot() domain.SessionSnapshot {
	var snap domain.SessionSnapshot
	c.do(func() { snap = c.session.Snapshot() })
	return snap
}

// FinalResults returns the current leaderboard without changing state.
func (c *Coordinator) FinalResults() domain.FinalResults {
	var final domain.FinalResults
	c.do(func() { final = c.session.FinalResults() })
	return final
}

// Active reports whether a quiz is currently running, for the liveness probe.
func (c *Coordinator) Active() bool {
	active := false
	c.do(func() { active = c.session.Active() })
	return active
}

func timeoutTimer(openID string) string { return "question:timeout:" + openID }
func settleTimer(openID string) string  { return "question:settle:" + openID }
func removalTimer(playerID string) string {
	return "player:remove:" + playerID
}
