package models

import (
	"fmt"
	"time"
)

// Council member models

// Geometry identifies the solid an avatar is rendered as
type Geometry string

const (
	GeometryBox          Geometry = "box"
	GeometrySphere       Geometry = "sphere"
	GeometryTetrahedron  Geometry = "tetrahedron"
	GeometryOctahedron   Geometry = "octahedron"
	GeometryDodecahedron Geometry = "dodecahedron"
	GeometryIcosahedron  Geometry = "icosahedron"
)

// VisualAttributes describes how a persona is drawn
type VisualAttributes struct {
	Color string   `json:"color" yaml:"color"` // Hex color, e.g. #ff8800
	Shape Geometry `json:"shape" yaml:"shape"`
	Font  string   `json:"font" yaml:"font"`
}

// Persona is one configured council member. Personas are built once at
// startup and never mutated afterwards.
type Persona struct {
	ID           string           `json:"id"`
	DisplayName  string           `json:"display_name"`
	SystemPrompt string           `json:"system_prompt"`
	Visual       VisualAttributes `json:"visual"`
	Slot         int              `json:"slot"` // Position in the council ring
}

// Answer lifecycle models

// AnswerStatus is the lifecycle stage of a single persona's answer
type AnswerStatus int

const (
	StatusIdle AnswerStatus = iota
	StatusPending
	StatusAnswered
	StatusFailed
)

func (s AnswerStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusAnswered:
		return "answered"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen within a round
func (s AnswerStatus) Terminal() bool {
	return s == StatusAnswered || s == StatusFailed
}

// MarshalText encodes the status by name so JSON payloads stay readable
func (s AnswerStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names MarshalText produces
func (s *AnswerStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StatusIdle
	case "pending":
		*s = StatusPending
	case "answered":
		*s = StatusAnswered
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown answer status %q", text)
	}
	return nil
}

// ErrorKind classifies why a request failed
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindValidation        ErrorKind = "validation_error"
	ErrorKindNetwork           ErrorKind = "network_error"
	ErrorKindAuth              ErrorKind = "auth_error"
	ErrorKindMalformedResponse ErrorKind = "malformed_response"
)

const (
	// EmptyAnswerSentinel replaces an empty but successful upstream answer
	EmptyAnswerSentinel = "*silence*"
	// FailedAnswerText is shown for a persona whose request failed
	FailedAnswerText = "Error fetching response."
	// PendingAnswerText is shown while a persona is still thinking
	PendingAnswerText = "Thinking..."
)

// AnswerState is the current state of one persona within a round
type AnswerState struct {
	Status AnswerStatus `json:"status"`
	Text   string       `json:"text,omitempty"`
	Reason ErrorKind    `json:"reason,omitempty"`
	Detail string       `json:"detail,omitempty"`
}

// Pending returns the state every persona enters when a round starts
func Pending() AnswerState {
	return AnswerState{Status: StatusPending}
}

// Answered returns a terminal success state
func Answered(text string) AnswerState {
	return AnswerState{Status: StatusAnswered, Text: text}
}

// Failed returns a terminal failure state
func Failed(kind ErrorKind, detail string) AnswerState {
	return AnswerState{Status: StatusFailed, Reason: kind, Detail: detail}
}

// DisplayText returns the label a renderer shows above the avatar
func (a AnswerState) DisplayText() string {
	switch a.Status {
	case StatusPending:
		return PendingAnswerText
	case StatusAnswered:
		return a.Text
	case StatusFailed:
		return FailedAnswerText
	default:
		return ""
	}
}

// History models

// HistoryEntry is one completed round as persisted in conversation history.
// Answers are indexed by persona slot; a nil slot means no answer was received.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Answers   []*string `json:"answers"`
}
