package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/rs/zerolog"
)

// Journal writes the engine's event stream into the history. It implements
// engine.EventSink and can be subscribed to a telemetry.EventPublisher.
// Write errors are logged, never returned to the engine.
type Journal struct {
	store  *SQLiteStore
	logger zerolog.Logger

	mu   sync.Mutex
	seqs map[string]*journalSeq
	errs int
}

type journalSeq struct {
	event   int
	outcome int
}

// NewJournal creates a journal writing to store.
func NewJournal(store *SQLiteStore, logger zerolog.Logger) *Journal {
	return &Journal{
		store:  store,
		logger: logger.With().Str("component", "journal").Logger(),
		seqs:   make(map[string]*journalSeq),
	}
}

// Publish implements engine.EventSink.
func (j *Journal) Publish(ctx context.Context, event *engine.Event) {
	if event.RunID == "" {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.record(context.WithoutCancel(ctx), event); err != nil {
		j.errs++
		j.logger.Error().Err(err).
			Str("run_id", event.RunID).
			Str("event", string(event.Type)).
			Msg("Failed to journal event")
	}
}

// Errors returns how many events failed to be written.
func (j *Journal) Errors() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.errs
}

func (j *Journal) record(ctx context.Context, event *engine.Event) error {
	seq := j.seqs[event.RunID]

	if event.Type == engine.EventTypeRunStarted {
		seq = &journalSeq{}
		j.seqs[event.RunID] = seq
		run := &RunRecord{
			ID:        event.RunID,
			Profile:   event.Profile,
			Status:    string(engine.RunStatusPending),
			Pillars:   stringSlice(event.Details["pillars"]),
			StartedAt: event.Timestamp,
		}
		if err := j.store.CreateRun(ctx, run); err != nil {
			return err
		}
	}
	if seq == nil {
		return fmt.Errorf("event %s for unknown run", event.Type)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	seq.event++
	if err := j.store.AppendEvent(ctx, &EventEntry{
		ID:        event.ID,
		RunID:     event.RunID,
		Seq:       seq.event,
		Type:      string(event.Type),
		Level:     event.Level,
		Unit:      event.Unit,
		Pillar:    event.Pillar,
		Message:   event.Message,
		Data:      string(data),
		Timestamp: event.Timestamp,
	}); err != nil {
		return err
	}

	switch event.Type {
	case engine.EventTypeStepFinished, engine.EventTypePillarMissing:
		if event.Outcome == nil {
			return nil
		}
		seq.outcome++
		return j.store.AppendOutcome(ctx, &OutcomeEntry{
			RunID:      event.RunID,
			Seq:        seq.outcome,
			Unit:       event.Unit,
			Kind:       string(event.Kind),
			Pillar:     event.Pillar,
			Status:     string(event.Outcome.Status),
			Diagnostic: event.Outcome.Diagnostic,
			ExitCode:   event.Outcome.ExitCode,
			Duration:   event.Outcome.Duration,
			RecordedAt: event.Timestamp,
		})

	case engine.EventTypeDecisionMade:
		return j.store.SetDecision(ctx, event.RunID, event.Unit, string(event.Decision))

	case engine.EventTypeRunFinished:
		delete(j.seqs, event.RunID)
		reason := ""
		if event.Status == string(engine.RunStatusAborted) {
			reason = strings.TrimPrefix(event.Message, "aborted: ")
		}
		return j.store.FinishRun(ctx, event.RunID, event.Status, reason,
			intDetail(event.Details, "succeeded"), intDetail(event.Details, "failed"), event.Timestamp)
	}
	return nil
}

func stringSlice(v interface{}) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}

func intDetail(details map[string]interface{}, key string) int {
	switch n := details[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
