package scripturepath

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// QuizOptionCount is the number of options every quiz question has.
const QuizOptionCount = 4

// QuizQuestion is one multiple-choice question of the theological quiz
type QuizQuestion struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"` // 0-based index
	Explanation        string   `json:"explanation,omitempty"`
}

// UnmarshalJSON also accepts the short {q, o, a} form the generation prompt
// asks for and the older correctAnswer field name.
func (q *QuizQuestion) UnmarshalJSON(data []byte) error {
	var aux struct {
		Question           string   `json:"question"`
		Q                  string   `json:"q"`
		Options            []string `json:"options"`
		O                  []string `json:"o"`
		CorrectAnswerIndex *int     `json:"correctAnswerIndex"`
		CorrectAnswer      *int     `json:"correctAnswer"`
		A                  *int     `json:"a"`
		Explanation        string   `json:"explanation"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*q = QuizQuestion{Question: aux.Question, Options: aux.Options, Explanation: aux.Explanation}
	if q.Question == "" {
		q.Question = aux.Q
	}
	if q.Options == nil {
		q.Options = aux.O
	}
	switch {
	case aux.CorrectAnswerIndex != nil:
		q.CorrectAnswerIndex = *aux.CorrectAnswerIndex
	case aux.CorrectAnswer != nil:
		q.CorrectAnswerIndex = *aux.CorrectAnswer
	case aux.A != nil:
		q.CorrectAnswerIndex = *aux.A
	default:
		q.CorrectAnswerIndex = -1
	}
	return nil
}

// Validate checks the question text, option count and answer index.
func (q QuizQuestion) Validate() error {
	if strings.TrimSpace(q.Question) == "" {
		return errors.New("question text is empty")
	}
	if len(q.Options) != QuizOptionCount {
		return fmt.Errorf("expected %d options, got %d", QuizOptionCount, len(q.Options))
	}
	for i, o := range q.Options {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("option %d is empty", i)
		}
	}
	if q.CorrectAnswerIndex < 0 || q.CorrectAnswerIndex >= QuizOptionCount {
		return fmt.Errorf("correct answer index %d outside 0..%d", q.CorrectAnswerIndex, QuizOptionCount-1)
	}
	return nil
}

// DecodeQuiz reads a quiz given either as a JSON array or as a JSON string
// holding one. Questions that fail to decode or validate are skipped; the
// reasons are returned alongside the valid ones. The error is set only when
// raw is not a question list at all.
func DecodeQuiz(raw json.RawMessage) ([]QuizQuestion, []string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nil, fmt.Errorf("failed to decode quiz string: %w", err)
		}
		raw = json.RawMessage(strings.TrimSpace(StripCodeFences(s)))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, fmt.Errorf("quiz is not a JSON array: %w", err)
	}

	var (
		questions []QuizQuestion
		dropped   []string
	)
	for i, item := range items {
		var q QuizQuestion
		if err := json.Unmarshal(item, &q); err != nil {
			dropped = append(dropped, fmt.Sprintf("question %d: %v", i, err))
			continue
		}
		if err := q.Validate(); err != nil {
			dropped = append(dropped, fmt.Sprintf("question %d: %v", i, err))
			continue
		}
		questions = append(questions, q)
	}
	return questions, dropped, nil
}

// ParseQuiz decodes stored quiz content.
func ParseQuiz(content string) ([]QuizQuestion, error) {
	qs, _, err := DecodeQuiz(json.RawMessage(content))
	return qs, err
}

// EncodeQuiz produces the stored quiz form, a JSON array string.
func EncodeQuiz(questions []QuizQuestion) string {
	if questions == nil {
		questions = []QuizQuestion{}
	}
	data, err := json.Marshal(questions)
	if err != nil {
		return "[]"
	}
	return string(data)
}
