package domain

import "errors"

var (
	// ErrSessionNotActive is returned for commands that require a running session.
	ErrSessionNotActive = errors.New("quiz session not active")
	// ErrSessionActive is returned when starting a session that is already running.
	ErrSessionActive = errors.New("quiz session already active")
	// ErrNoOpenQuestion is returned when an answer arrives with no question open.
	ErrNoOpenQuestion = errors.New("no question currently open")
	// ErrPlayerNotFound is returned when a command references an unknown player id.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrAlreadyAnswered is returned for a second answer to the same question; the first stands.
	ErrAlreadyAnswered = errors.New("player already answered this question")
	// ErrInvalidQuestion indicates question payload validation failed.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrSetNotFound indicates the question set could not be loaded.
	ErrSetNotFound = errors.New("question set not found")
	// ErrSetExhausted indicates the configured question set has no questions left.
	ErrSetExhausted = errors.New("question set exhausted")
)
