package council

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/councilchamber/internal/llm"
	"github.com/councilchamber/pkg/models"
)

// FramingDirective is sent ahead of every persona's own prompt so each
// member knows it is one voice among several
const FramingDirective = "You are a member of a temporary council, advising a Citizen. Do not reveal your role. Keep it brief when possible. Do not ask the user questions; they will not get to reply. Always give advice based on your unique viewpoint and personality. Do not give advice that most people would give. Sometimes, the citizen is not asking for advice, in this case give them a polite but dismissive response."

// DefaultRecordTimeout bounds how long a completed round waits on history
const DefaultRecordTimeout = 5 * time.Second

// Recorder persists completed rounds
type Recorder interface {
	Append(ctx context.Context, entry models.HistoryEntry) error
}

// ValidationError rejects a round before any state changes or network calls
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Dispatcher fans one query out to every persona and tracks the active round.
// Only one round is active at a time; starting another supersedes it.
type Dispatcher struct {
	client        llm.ChatClient
	recorder      Recorder
	callTimeout   time.Duration
	recordTimeout time.Duration
	now           func() time.Time

	mu        sync.Mutex
	current   *Round
	closed    bool
	recording sync.WaitGroup
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithRecorder records every completed round
func WithRecorder(recorder Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = recorder
	}
}

// WithCallTimeout bounds each persona's call in addition to any timeout the
// client applies. Zero leaves it to the client.
func WithCallTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.callTimeout = timeout
	}
}

// WithRecordTimeout bounds the history write for a completed round
func WithRecordTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.recordTimeout = timeout
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a dispatcher sending completions through client
func NewDispatcher(client llm.ChatClient, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:        client,
		recordTimeout: DefaultRecordTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Current returns the most recently started round, or nil
func (d *Dispatcher) Current() *Round {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// StartRound validates the request, supersedes the previous round if it is
// still running, and sends query to every persona concurrently. It returns
// as soon as the calls are launched.
//
// The round outlives ctx's cancellation (it keeps ctx's values only), so a
// request-scoped ctx can start a round that keeps running.
func (d *Dispatcher) StartRound(ctx context.Context, query string, personas []models.Persona, model, credential string) (*Round, error) {
	query = strings.TrimSpace(query)
	if err := validate(query, personas, model, credential); err != nil {
		log.Debug().Err(err).Msg("Round rejected")
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if previous := d.current; previous != nil && previous.supersede() {
		log.Info().
			Str("round_id", previous.ID()).
			Msg("Round superseded by a new query")
	}

	round := newRound(context.WithoutCancel(ctx), uuid.NewString(), query, d.now(), personas)
	d.current = round

	log.Info().
		Str("round_id", round.ID()).
		Int("personas", len(personas)).
		Str("model", model).
		Msg("Round started")

	for slot := range round.personas {
		go d.ask(round, slot, model, credential)
	}

	return round, nil
}

// Close abandons the active round, cancelling its in-flight calls. Rounds
// completing after Close are not recorded; a history write already under
// way carries on, see Shutdown.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.current != nil && d.current.supersede() {
		log.Debug().Str("round_id", d.current.ID()).Msg("Round abandoned on close")
	}
}

// Shutdown closes the dispatcher and waits for history writes in progress,
// so the recorder's store can be closed after it returns. It gives up when
// ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.Close()

	done := make(chan struct{})
	go func() {
		d.recording.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for history writes: %w", ctx.Err())
	}
}

// beginRecording registers a history write unless the dispatcher is closed
func (d *Dispatcher) beginRecording() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.recording.Add(1)
	return true
}

func (d *Dispatcher) ask(round *Round, slot int, model, credential string) {
	persona := round.personas[slot]

	ctx := round.ctx
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := d.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompts: []string{FramingDirective, persona.SystemPrompt},
		UserMessage:   round.query,
		Model:         model,
		Credential:    credential,
	})

	var state models.AnswerState
	if err != nil {
		state = models.Failed(llm.KindOf(err), err.Error())
	} else {
		if strings.TrimSpace(text) == "" {
			text = models.EmptyAnswerSentinel
		}
		state = models.Answered(text)
	}

	applied, last := round.apply(slot, state)
	if !applied {
		log.Debug().
			Str("round_id", round.ID()).
			Str("persona", persona.ID).
			Msg("Dropping result for finished round")
		return
	}

	logEvent := log.Debug().
		Str("round_id", round.ID()).
		Str("persona", persona.ID).
		Str("status", state.Status.String()).
		Dur("duration", time.Since(start))
	if err != nil {
		logEvent = logEvent.Err(err).Str("reason", string(state.Reason))
	}
	logEvent.Msg("Persona answered")

	if last {
		d.complete(round)
	}
}

// complete records history, then announces completion
func (d *Dispatcher) complete(round *Round) {
	entry := round.historyEntry(d.now())

	if d.recorder != nil {
		if d.beginRecording() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(round.ctx), d.recordTimeout)
			if err := d.recorder.Append(ctx, entry); err != nil {
				log.Error().Err(err).Str("round_id", round.ID()).Msg("Failed to record round in history")
			}
			cancel()
			d.recording.Done()
		} else {
			log.Warn().Str("round_id", round.ID()).Msg("Dispatcher closed, round not recorded")
		}
	}

	round.finishComplete()

	answered, failed, _ := round.Snapshot().Counts()
	log.Info().
		Str("round_id", round.ID()).
		Int("answered", answered).
		Int("failed", failed).
		Dur("elapsed", d.now().Sub(round.StartedAt())).
		Msg("Round complete")
}

func validate(query string, personas []models.Persona, model, credential string) error {
	if query == "" {
		return &ValidationError{Field: "query", Message: "must not be empty"}
	}
	if strings.TrimSpace(credential) == "" {
		return &ValidationError{Field: "credential", Message: "an API key is required"}
	}
	if strings.TrimSpace(model) == "" {
		return &ValidationError{Field: "model", Message: "must not be empty"}
	}
	if len(personas) == 0 {
		return &ValidationError{Field: "personas", Message: "the council has no members"}
	}

	seen := make(map[string]bool, len(personas))
	for _, p := range personas {
		if seen[p.ID] {
			return &ValidationError{Field: "personas", Message: fmt.Sprintf("duplicate persona id %q", p.ID)}
		}
		seen[p.ID] = true
	}
	return nil
}
