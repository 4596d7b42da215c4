// Package quiz implements the per-room OX quiz: question sanitization,
// zone-based answer judging, and the phase state machine with auto-start
// countdown, per-question lock timers, scoring and elimination.
package quiz

import (
	"strings"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

const (
	MaxQuestions    = 50
	MaxQuestionID   = 24
	MaxQuestionText = 180
)

// Question is a sanitized OX question.
type Question struct {
	ID     string           `json:"id"`
	Text   string           `json:"text"`
	Answer types.ChoiceType `json:"answer"`
}

// QuestionConfig is the loose client-supplied shape accepted by
// quiz:config:set before sanitization.
type QuestionConfig struct {
	ID     string `json:"id,omitempty"`
	Text   string `json:"text,omitempty"`
	Answer string `json:"answer"`
}

// answerAliases maps the accepted answer spellings to a zone choice.
// Extend this table for new client vocabularies; the state machine only
// ever sees O or X.
var answerAliases = map[string]types.ChoiceType{
	"O": types.ChoiceO, "TRUE": types.ChoiceO, "YES": types.ChoiceO, "1": types.ChoiceO, "LEFT": types.ChoiceO,
	"X": types.ChoiceX, "FALSE": types.ChoiceX, "NO": types.ChoiceX, "0": types.ChoiceX, "RIGHT": types.ChoiceX,
}

// NormalizeAnswer resolves a raw answer string to O or X.
func NormalizeAnswer(raw string) (types.ChoiceType, bool) {
	choice, ok := answerAliases[strings.ToUpper(strings.TrimSpace(raw))]
	return choice, ok
}

// SanitizeQuestions converts a loose question list into the strict bank:
// unresolvable answers are dropped, ids and texts truncated, the list
// clamped to MaxQuestions. An empty result falls back to the fixed bank.
func SanitizeQuestions(raw []QuestionConfig) []Question {
	out := make([]Question, 0, len(raw))
	for i, rq := range raw {
		answer, ok := NormalizeAnswer(rq.Answer)
		if !ok {
			continue
		}
		q := Question{
			ID:     truncate(strings.TrimSpace(rq.ID), MaxQuestionID),
			Text:   truncate(strings.TrimSpace(rq.Text), MaxQuestionText),
			Answer: answer,
		}
		if q.Text == "" {
			q.Text = defaultQuestionText(i + 1)
		}
		out = append(out, q)
		if len(out) == MaxQuestions {
			break
		}
	}
	if len(out) == 0 {
		return FallbackBank()
	}
	return out
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n])
	}
	return s
}

func defaultQuestionText(n int) string {
	return "Question " + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// FallbackBank is the fixed bank used when no host config exists.
func FallbackBank() []Question {
	answers := []types.ChoiceType{
		types.ChoiceO, types.ChoiceX, types.ChoiceO, types.ChoiceX, types.ChoiceX,
		types.ChoiceO, types.ChoiceX, types.ChoiceO, types.ChoiceO, types.ChoiceX,
	}
	bank := make([]Question, len(answers))
	for i, a := range answers {
		bank[i] = Question{
			ID:     "fallback-" + itoa(i+1),
			Text:   defaultQuestionText(i + 1),
			Answer: a,
		}
	}
	return bank
}
