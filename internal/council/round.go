package council

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/councilchamber/pkg/models"
)

// ErrSuperseded is returned by Wait when a newer round replaced this one
var ErrSuperseded = errors.New("round superseded by a newer round")

// EventType names a round notification
type EventType string

const (
	EventPersonaTransition EventType = "persona_transition"
	EventRoundComplete     EventType = "round_complete"
	EventRoundSuperseded   EventType = "round_superseded"
)

// Event is sent to subscribers once per persona transition, then once when
// the round completes or is superseded. PersonaID, Slot and State are only
// set for persona transitions.
type Event struct {
	RoundID   string             `json:"round_id"`
	Type      EventType          `json:"type"`
	PersonaID string             `json:"persona_id,omitempty"`
	Slot      int                `json:"slot"`
	State     models.AnswerState `json:"state"`
}

// PersonaAnswer is one persona's entry in a snapshot
type PersonaAnswer struct {
	PersonaID   string             `json:"persona_id"`
	DisplayName string             `json:"display_name"`
	Slot        int                `json:"slot"`
	State       models.AnswerState `json:"state"`
}

// Snapshot is a consistent copy of a round's state
type Snapshot struct {
	RoundID    string          `json:"round_id"`
	Query      string          `json:"query"`
	StartedAt  time.Time       `json:"started_at"`
	Complete   bool            `json:"complete"`
	Superseded bool            `json:"superseded"`
	Answers    []PersonaAnswer `json:"answers"`
}

// State returns the state of the persona with the given id
func (s Snapshot) State(personaID string) (models.AnswerState, bool) {
	for _, answer := range s.Answers {
		if answer.PersonaID == personaID {
			return answer.State, true
		}
	}
	return models.AnswerState{}, false
}

// Counts returns how many personas answered, failed and are still pending
func (s Snapshot) Counts() (answered, failed, pending int) {
	for _, answer := range s.Answers {
		switch answer.State.Status {
		case models.StatusAnswered:
			answered++
		case models.StatusFailed:
			failed++
		default:
			pending++
		}
	}
	return answered, failed, pending
}

// Round is the handle for one dispatched query. All state lives on the
// handle; nothing is shared with other rounds.
type Round struct {
	id        string
	query     string
	startedAt time.Time
	personas  []models.Persona

	// ctx is cancelled once the round is finished, aborting in-flight calls
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	states      []models.AnswerState
	remaining   int
	complete    bool
	superseded  bool
	finished    bool
	subscribers map[int]chan Event
	nextSubID   int
	done        chan struct{}
}

func newRound(ctx context.Context, id, query string, startedAt time.Time, personas []models.Persona) *Round {
	roundCtx, cancel := context.WithCancel(ctx)

	seated := make([]models.Persona, len(personas))
	copy(seated, personas)

	states := make([]models.AnswerState, len(personas))
	for i := range states {
		states[i] = models.Pending()
	}

	return &Round{
		id:          id,
		query:       query,
		startedAt:   startedAt,
		personas:    seated,
		ctx:         roundCtx,
		cancel:      cancel,
		states:      states,
		remaining:   len(personas),
		subscribers: make(map[int]chan Event),
		done:        make(chan struct{}),
	}
}

func (r *Round) ID() string { return r.id }

func (r *Round) Query() string { return r.query }

func (r *Round) StartedAt() time.Time { return r.startedAt }

// Personas returns the council in slot order
func (r *Round) Personas() []models.Persona {
	personas := make([]models.Persona, len(r.personas))
	copy(personas, r.personas)
	return personas
}

// Snapshot returns the current state of every persona. It never blocks on
// the network.
func (r *Round) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Round) snapshotLocked() Snapshot {
	answers := make([]PersonaAnswer, len(r.personas))
	for i, p := range r.personas {
		answers[i] = PersonaAnswer{
			PersonaID:   p.ID,
			DisplayName: p.DisplayName,
			Slot:        p.Slot,
			State:       r.states[i],
		}
	}
	return Snapshot{
		RoundID:    r.id,
		Query:      r.query,
		StartedAt:  r.startedAt,
		Complete:   r.complete,
		Superseded: r.superseded,
		Answers:    answers,
	}
}

// IsComplete reports whether every persona has reached a terminal state
func (r *Round) IsComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

// IsSuperseded reports whether a newer round replaced this one before it
// completed
func (r *Round) IsSuperseded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.superseded
}

// Done is closed after the final notification: round_complete (with history
// already recorded) or round_superseded
func (r *Round) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the round is done or ctx ends
func (r *Round) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-r.done:
		snapshot := r.Snapshot()
		if snapshot.Superseded {
			return snapshot, ErrSuperseded
		}
		return snapshot, nil
	case <-ctx.Done():
		return r.Snapshot(), ctx.Err()
	}
}

// Subscribe returns a channel of events emitted from now on, and a func to
// stop listening. The channel is buffered for every event the round can
// still emit, so a slow reader never loses or delays a notification. It is
// closed once the round is done.
func (r *Round) Subscribe() (<-chan Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// One event per persona plus the final one
	ch := make(chan Event, len(r.personas)+1)
	if r.finished {
		close(ch)
		return ch, func() {}
	}

	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if sub, ok := r.subscribers[id]; ok {
				delete(r.subscribers, id)
				close(sub)
			}
		})
	}
	return ch, unsubscribe
}

// apply records a persona's terminal state. It returns false when the round
// no longer accepts results, and reports whether this was the last persona.
func (r *Round) apply(slot int, state models.AnswerState) (applied, lastAnswer bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.superseded || r.finished || r.states[slot].Status.Terminal() {
		return false, false
	}

	r.states[slot] = state
	r.remaining--
	r.publishLocked(Event{
		RoundID:   r.id,
		Type:      EventPersonaTransition,
		PersonaID: r.personas[slot].ID,
		Slot:      r.personas[slot].Slot,
		State:     state,
	})

	if r.remaining == 0 {
		r.complete = true
		return true, true
	}
	return true, false
}

// historyEntry converts the completed round into its persisted form: the
// answer text per slot, nil where the persona failed
func (r *Round) historyEntry(at time.Time) models.HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	answers := make([]*string, len(r.states))
	for i, state := range r.states {
		if state.Status == models.StatusAnswered {
			text := state.Text
			answers[i] = &text
		}
	}
	return models.HistoryEntry{Timestamp: at, Query: r.query, Answers: answers}
}

// finishComplete emits round_complete and releases the round
func (r *Round) finishComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.publishLocked(Event{RoundID: r.id, Type: EventRoundComplete, Slot: -1})
	r.finishLocked()
}

// supersede invalidates an incomplete round. Results that arrive afterwards
// are dropped and in-flight calls are cancelled.
func (r *Round) supersede() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.complete || r.superseded {
		return false
	}
	r.superseded = true
	r.publishLocked(Event{RoundID: r.id, Type: EventRoundSuperseded, Slot: -1})
	r.finishLocked()
	return true
}

func (r *Round) publishLocked(event Event) {
	for id, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			// Buffers are sized for the whole round; a full buffer means a
			// subscriber is far behind, so drop it rather than block
			log.Warn().Str("round_id", r.id).Int("subscriber", id).Msg("Dropping stalled round subscriber")
			delete(r.subscribers, id)
			close(ch)
		}
	}
}

func (r *Round) finishLocked() {
	r.finished = true
	for id, ch := range r.subscribers {
		delete(r.subscribers, id)
		close(ch)
	}
	close(r.done)
	r.cancel()
}
