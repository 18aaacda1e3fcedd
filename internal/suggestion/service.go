// Package suggestion implements SuggestionStore: persisted background-
// analysis results (task-structure hints, event-synthesis summaries, error
// notes), capped at 20 active entries with FIFO eviction, plus a
// fire-and-forget worker that runs LLM analysis on a cooldown so it never
// runs on every single write.
package suggestion

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wayfind/intent-engine/internal/config"
	"github.com/wayfind/intent-engine/internal/llm"
	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/store"
)

type Service struct {
	store *store.Store
	llm   *llm.Client
	log   *config.Logger

	cooldownUntil atomic.Int64 // unix seconds; 0 means no cooldown in effect
}

func New(s *store.Store, llmClient *llm.Client, logger *config.Logger) *Service {
	return &Service{store: s, llm: llmClient, log: logger}
}

// Add persists a suggestion directly (used by callers that already have
// content to record, such as a CLI-triggered analysis run).
func (s *Service) Add(ctx context.Context, typ, content string) (model.Suggestion, error) {
	var out model.Suggestion
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		sg, err := s.store.AddSuggestion(ctx, tx, typ, content)
		if err != nil {
			return err
		}
		out = sg
		return nil
	})
	return out, err
}

// List returns active suggestions, newest first (optionally including
// dismissed ones).
func (s *Service) List(ctx context.Context, includeDismissed bool) ([]model.Suggestion, error) {
	return s.store.ListSuggestions(ctx, nil, includeDismissed)
}

// Dismiss marks a suggestion dismissed.
func (s *Service) Dismiss(ctx context.Context, id int64) error {
	return s.store.WithTx(ctx, func(tx *sql.Tx) error {
		return s.store.DismissSuggestion(ctx, tx, id)
	})
}

// Clear permanently removes dismissed suggestions.
func (s *Service) Clear(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = s.store.ClearDismissedSuggestions(ctx, tx)
		return err
	})
	return n, err
}

const cooldown = 5 * time.Minute

// MaybeAnalyze fires a background analysis of the given task/event context
// if the LLM client is configured and the cooldown has elapsed, returning
// immediately either way — analysis runs in its own goroutine and writes
// its result as a suggestion when done. The stored value is the cooldown's
// end time. Self-heals if that end time lies two or more cooldown periods
// ahead of now (a clock-skew artifact from a prior run): such a value is
// treated as already expired rather than blocking analysis indefinitely.
func (s *Service) MaybeAnalyze(ctx context.Context, taskName, eventBody string) {
	if s.llm == nil || !s.llm.Configured() {
		return
	}
	now := time.Now().Unix()
	last := s.cooldownUntil.Load()
	if last > 0 && last > now && last-now < int64(cooldown/time.Second)*2 {
		return // cooldown genuinely in effect
	}
	s.cooldownUntil.Store(now + int64(cooldown/time.Second))

	go s.runAnalysis(taskName, eventBody)
}

func (s *Service) runAnalysis(taskName, eventBody string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prompt := fmt.Sprintf("Task: %s\nLatest event: %s", taskName, eventBody)
	text, err := s.llm.Complete(ctx, synthesisSystemPrompt, prompt)
	if err != nil {
		if s.log != nil {
			s.log.Printf("suggestion: analysis failed: %v", err)
		}
		if _, addErr := s.Add(ctx, model.SuggestionError, err.Error()); addErr != nil && s.log != nil {
			s.log.Printf("suggestion: failed to record analysis error: %v", addErr)
		}
		return
	}
	if _, err := s.Add(ctx, model.SuggestionEventSynth, text); err != nil && s.log != nil {
		s.log.Printf("suggestion: failed to persist suggestion: %v", err)
	}
}

const synthesisSystemPrompt = `You summarize engineering task activity into a one or two sentence note
highlighting anything a human should know before resuming this task: risks, decisions made, or
follow-ups implied by the latest event.`
