// Package evaluator implements the multi-turn evaluator of
// spec.md §4.K / SPEC_FULL.md §4.K: it decomposes a golden-question
// prompt into turns, threads conversation history between them, and
// rolls the per-turn answers up into one result.
package evaluator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/goreason/manuals/answer"
)

var (
	stepSplitter = regexp.MustCompile(`(?i)\bstep\s*\d+\s*:\s*`)
	thenSplitter = regexp.MustCompile(`(?i)\bthen\b`)
)

const maxPriorTurns = 2
const maxAssistantRunes = 800

// Question is one golden-evaluation input record.
type Question struct {
	DocID     string
	TurnCount int
	Prompt    string
}

// TurnResult pairs a composed turn prompt with its answer output.
type TurnResult struct {
	TurnPrompt string
	Output     answer.Output
}

// Rollup is the final result of evaluating one Question.
type Rollup struct {
	Status           string
	Citations        []answer.Citation
	FollowUpQuestion string
	PlannedTurns     int
	ExecutedTurns    int
	TurnPrompts      []string
	TurnStatuses     []string
	Reasons          []string
}

// Evaluator runs multi-turn golden questions through an answer composer.
type Evaluator struct {
	composer *answer.Composer
}

// New builds an evaluator over the given answer composer.
func New(composer *answer.Composer) *Evaluator {
	return &Evaluator{composer: composer}
}

// Run decomposes, threads, and executes every turn of q, per spec.md
// §4.K.
func (e *Evaluator) Run(ctx context.Context, q Question, useAgenticMode, enforceStructuredOutput bool) (Rollup, error) {
	turns := decompose(q.Prompt, q.TurnCount)

	var history []TurnResult
	for i, turnPrompt := range turns {
		composed := turnPrompt
		if i > 0 {
			composed = composeTurnQuery(turnPrompt, history)
		}

		out, err := e.composer.Compose(ctx, answer.Input{
			Query:                   composed,
			DocID:                   q.DocID,
			TopN:                    8,
			UseAgenticMode:          useAgenticMode,
			EnforceStructuredOutput: enforceStructuredOutput,
		})
		if err != nil {
			return Rollup{}, err
		}
		history = append(history, TurnResult{TurnPrompt: turnPrompt, Output: out})
	}

	return rollUp(q.TurnCount, history), nil
}

// decompose splits prompt into turns, per spec.md §4.K step 1.
func decompose(prompt string, turnCount int) []string {
	if turnCount <= 1 {
		return []string{prompt}
	}

	if parts := splitNonEmpty(stepSplitter.Split(prompt, -1)); len(parts) >= 2 {
		return parts
	}
	if parts := splitNonEmpty(strings.Split(prompt, "->")); len(parts) >= 2 {
		return parts
	}
	if parts := splitNonEmpty(thenSplitter.Split(prompt, -1)); len(parts) >= 2 {
		return parts
	}
	return []string{prompt}
}

func splitNonEmpty(parts []string) []string {
	var out []string
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// composeTurnQuery builds the threaded query for turn index > 0, per
// spec.md §4.K step 2.
func composeTurnQuery(currentPrompt string, history []TurnResult) string {
	var b strings.Builder
	b.WriteString("Conversation context from earlier turns:")

	start := 0
	if len(history) > maxPriorTurns {
		start = len(history) - maxPriorTurns
	}
	for i := start; i < len(history); i++ {
		turnNum := i + 1
		assistantText := truncateRunes(history[i].Output.Answer, maxAssistantRunes)
		b.WriteString(fmt.Sprintf("\nPrior turn %d user: %s", turnNum, history[i].TurnPrompt))
		b.WriteString(fmt.Sprintf("\nPrior turn %d assistant: %s", turnNum, assistantText))
	}
	b.WriteString("\nCurrent turn user: ")
	b.WriteString(currentPrompt)
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func rollUp(plannedTurns int, history []TurnResult) Rollup {
	if plannedTurns < 1 {
		plannedTurns = 1
	}
	executed := len(history)

	var prompts, statuses []string
	for _, h := range history {
		prompts = append(prompts, h.TurnPrompt)
		statuses = append(statuses, h.Output.Status)
	}

	roll := Rollup{
		PlannedTurns:  plannedTurns,
		ExecutedTurns: executed,
		TurnPrompts:   prompts,
		TurnStatuses:  statuses,
	}

	if executed > 0 {
		final := history[executed-1].Output
		roll.Status = final.Status
		roll.Citations = final.Citations
		roll.FollowUpQuestion = final.FollowUpQuestion
	}

	if executed < plannedTurns {
		roll.Reasons = append(roll.Reasons, "insufficient turns executed for multi-turn scenario")
	}

	return roll
}
