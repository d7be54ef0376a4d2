package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"reflect"
)

// RoomState is the lifecycle phase of a quiz room.
type RoomState string

const (
	RoomWaiting  RoomState = "waiting"
	RoomPlaying  RoomState = "playing"
	RoomFinished RoomState = "finished"
)

// ScoreReward is awarded for each correct answer.
const ScoreReward = 10

// Pattern selects which question types a room draws from.
type Pattern string

const (
	PatternMixed         Pattern = "mixed"
	PatternAssertionOnly Pattern = "assertion_only"
	PatternDiagramOnly   Pattern = "diagram_only"
)

// Question types as stored in the question bank.
const (
	TypeMCQ             = "MCQ"
	TypeAssertionReason = "Assertion_Reason"
	TypeDiagramBased    = "Diagram_Based"
	TypeMatchColumn     = "Match_Column"
	TypeMultiStatement  = "Multi_Statement"
)

// QuestionTypes returns the type filter for the pattern. An empty result means any type.
func (p Pattern) QuestionTypes() []string {
	switch p {
	case PatternAssertionOnly:
		return []string{TypeAssertionReason}
	case PatternDiagramOnly:
		return []string{TypeDiagramBased}
	default:
		return nil
	}
}

// RoomConfig is fixed when a room is created.
type RoomConfig struct {
	Pattern         Pattern `json:"pattern" yaml:"pattern" validate:"required,oneof=mixed assertion_only diagram_only"`
	QuestionCount   int     `json:"questionCount" yaml:"question_count" validate:"min=1,max=200"`
	TimePerQuestion int     `json:"timePerQuestion" yaml:"time_per_question" validate:"min=1,max=3600"` // seconds
}

// QuestionFilter is what a QuestionSource selects on.
type QuestionFilter struct {
	Pattern Pattern
}

// Types is shorthand for the pattern's type filter.
func (f QuestionFilter) Types() []string {
	return f.Pattern.QuestionTypes()
}

// Participant is a user taking part in a room.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Answer is a raw JSON answer payload. Composite answers (pairings, statement sets)
// are compared structurally, see Equal.
type Answer json.RawMessage

// MarshalJSON keeps the payload verbatim.
func (a Answer) MarshalJSON() ([]byte, error) {
	if len(a) == 0 {
		return []byte("null"), nil
	}
	return a, nil
}

// UnmarshalJSON copies the payload verbatim.
func (a *Answer) UnmarshalJSON(data []byte) error {
	*a = append((*a)[:0], data...)
	return nil
}

// Equal reports structural equality: objects match regardless of key order,
// arrays must match element by element in order. Numbers compare by exact value.
func (a Answer) Equal(other Answer) bool {
	left, ok := decodeAnswer(a)
	if !ok {
		return false
	}
	right, ok := decodeAnswer(other)
	if !ok {
		return false
	}
	return reflect.DeepEqual(left, right)
}

// answerNumber is a JSON number in canonical rational form, so 1, 1.0 and 1e0 agree
// and integers above 2^53 keep every digit.
type answerNumber string

func decodeAnswer(raw []byte) (any, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, false
	}
	return normalizeAnswer(v)
}

func normalizeAnswer(v any) (any, bool) {
	switch val := v.(type) {
	case json.Number:
		r, ok := new(big.Rat).SetString(string(val))
		if !ok {
			return nil, false
		}
		return answerNumber(r.RatString()), true
	case map[string]any:
		for k, item := range val {
			n, ok := normalizeAnswer(item)
			if !ok {
				return nil, false
			}
			val[k] = n
		}
		return val, true
	case []any:
		for i, item := range val {
			n, ok := normalizeAnswer(item)
			if !ok {
				return nil, false
			}
			val[i] = n
		}
		return val, true
	default:
		return val, true
	}
}

// Question is a record supplied by a QuestionSource.
type Question struct {
	ID            string          `json:"id" yaml:"id"`
	Type          string          `json:"type" yaml:"type"`
	Level         string          `json:"level,omitempty" yaml:"level"`
	TopicTag      string          `json:"topicTag,omitempty" yaml:"topic_tag"`
	Content       json.RawMessage `json:"content" yaml:"-"`
	CorrectAnswer Answer          `json:"correctAnswer" yaml:"-"`
	Explanation   string          `json:"explanation,omitempty" yaml:"explanation"`
}

// PublicQuestion is the broadcastable view of a question; it never carries the answer.
type PublicQuestion struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// Public strips the correct answer and explanation.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{ID: q.ID, Type: q.Type, Content: q.Content}
}

// RoomView is a read-only snapshot of a room.
type RoomView struct {
	ID             string         `json:"id"`
	HostID         string         `json:"hostId"`
	Config         RoomConfig     `json:"config"`
	State          RoomState      `json:"state"`
	Participants   []Participant  `json:"participants"`
	Scores         map[string]int `json:"scores"`
	QuestionNumber int            `json:"questionNumber"`
	TotalQuestions int            `json:"totalQuestions"`
}

// SubmitStatus describes how a submission was handled.
type SubmitStatus string

const (
	SubmitScored    SubmitStatus = "scored"
	SubmitIncorrect SubmitStatus = "incorrect"
	SubmitDuplicate SubmitStatus = "duplicate"
	SubmitIgnored   SubmitStatus = "ignored"
)

// SubmitAck is returned for every accepted submit command, scoring or not.
type SubmitAck struct {
	Status         SubmitStatus `json:"status"`
	QuestionNumber int          `json:"questionNumber,omitempty"`
	Score          int          `json:"score"`
}
