package domain

import (
	"fmt"
	"time"
)

// DefaultTimeLimit applies when a question arrives without an explicit limit.
const DefaultTimeLimit = 30 * time.Second

// Player is a session participant. The ID is minted once per display name and
// survives reconnects; only ConnectionID changes when the transport session does.
type Player struct {
	ID            string    `json:"id"`
	ConnectionID  string    `json:"-"`
	Name          string    `json:"name"`
	Score         int       `json:"score"`
	CorrectCount  int       `json:"correctCount"`
	AnsweredCount int       `json:"answeredCount"`
	JoinedAt      time.Time `json:"joinedAt"`
	Connected     bool      `json:"connected"`
}

// Question models an MCQ question pushed to the session.
type Question struct {
	Text         string        `json:"text"`
	Options      []string      `json:"options"`
	CorrectIndex int           `json:"correctIndex"`
	TimeLimit    time.Duration `json:"timeLimit"`
	Category     string        `json:"category,omitempty"`
}

// NewQuestion validates and builds a Question. A zero time limit falls back to
// DefaultTimeLimit; everything else is rejected at construction time so the
// scoring path never sees a malformed question.
func NewQuestion(text string, options []string, correctIndex int, timeLimit time.Duration, category string) (Question, error) {
	if text == "" {
		return Question{}, fmt.Errorf("%w: empty text", ErrInvalidQuestion)
	}
	if len(options) < 2 {
		return Question{}, fmt.Errorf("%w: need at least 2 options, got %d", ErrInvalidQuestion, len(options))
	}
	if correctIndex < 0 || correctIndex >= len(options) {
		return Question{}, fmt.Errorf("%w: correct index %d out of range [0,%d)", ErrInvalidQuestion, correctIndex, len(options))
	}
	if timeLimit == 0 {
		timeLimit = DefaultTimeLimit
	}
	if timeLimit < 0 {
		return Question{}, fmt.Errorf("%w: negative time limit", ErrInvalidQuestion)
	}
	return Question{
		Text:         text,
		Options:      options,
		CorrectIndex: correctIndex,
		TimeLimit:    timeLimit,
		Category:     category,
	}, nil
}

// QuestionSet is an operator-curated bank of questions loaded from storage.
type QuestionSet struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// OpenQuestion is the question currently accepting answers. OpenID is minted
// fresh each time a question opens so stale timer callbacks can be told apart
// from live ones.
type OpenQuestion struct {
	Question
	OpenID   string    `json:"openId"`
	OpenedAt time.Time `json:"openedAt"`
}

// Response records one player's answer to the open question. Absence of a
// response is represented by the player's id missing from the response set.
type Response struct {
	PlayerID    string
	AnswerIndex int
	SubmittedAt time.Time
}

// PlayerOutcome is one player's line in a QuestionResult.
type PlayerOutcome struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	// Answered is false for no-answer entries; AnswerIndex and LatencyMs are
	// meaningless when it is.
	Answered    bool  `json:"answered"`
	AnswerIndex int   `json:"answerIndex"`
	Correct     bool  `json:"correct"`
	Points      int   `json:"points"`
	LatencyMs   int64 `json:"latencyMs"`
}

// QuestionResult is the immutable scoring snapshot produced once per closed question.
type QuestionResult struct {
	Question       QuestionView    `json:"question"`
	Outcomes       []PlayerOutcome `json:"outcomes"`
	TotalResponses int             `json:"totalResponses"`
	TotalCorrect   int             `json:"totalCorrect"`
}

// QuestionView is a Question as shown to clients, with the answer key withheld.
type QuestionView struct {
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
	Category         string   `json:"category,omitempty"`
}

// View strips the answer key from a question for broadcast.
func (q Question) View() QuestionView {
	return QuestionView{
		Text:             q.Text,
		Options:          q.Options,
		TimeLimitSeconds: int(q.TimeLimit / time.Second),
		Category:         q.Category,
	}
}

// SessionSnapshot is a consistent copy-out view of the session for broadcast
// and status queries. It never aliases live state.
type SessionSnapshot struct {
	Active         bool          `json:"active"`
	Players        []Player      `json:"players"`
	OpenQuestion   *QuestionView `json:"openQuestion,omitempty"`
	ResponseCount  int           `json:"responseCount"`
	QuestionsAsked int           `json:"questionsAsked"`
	StartedAt      *time.Time    `json:"startedAt,omitempty"`
}

// RankedPlayer is one leaderboard line in FinalResults.
type RankedPlayer struct {
	Rank          int     `json:"rank"`
	PlayerID      string  `json:"playerId"`
	Name          string  `json:"name"`
	Score         int     `json:"score"`
	CorrectCount  int     `json:"correctCount"`
	AnsweredCount int     `json:"answeredCount"`
	Accuracy      float64 `json:"accuracy"`
}

// FinalResults is the end-of-session leaderboard. Players who never answered
// are excluded.
type FinalResults struct {
	TotalQuestions int            `json:"totalQuestions"`
	TotalPlayers   int            `json:"totalPlayers"`
	Leaderboard    []RankedPlayer `json:"leaderboard"`
	Duration       time.Duration  `json:"duration"`
}

// Notification is an operational broadcast from scheduling collaborators.
type Notification struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
