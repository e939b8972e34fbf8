package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Event Interface and Base Event
// -----------------------------------------------------------------------------

// Event represents a domain event
type Event interface {
	// EventID returns the unique identifier for this event
	EventID() uuid.UUID
	// EventType returns the type name of this event
	EventType() string
	// OccurredAt returns when this event occurred
	OccurredAt() time.Time
	// AggregateID returns the ID of the aggregate that produced this event
	AggregateID() uuid.UUID
	// AggregateType returns the type of aggregate that produced this event
	AggregateType() string
}

// BaseEvent provides common event fields
type BaseEvent struct {
	ID            uuid.UUID `json:"id"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateUUID uuid.UUID `json:"aggregate_id"`
	AggregateName string    `json:"aggregate_type"`
}

// NewBaseEvent creates a new BaseEvent
func NewBaseEvent(eventType, aggregateType string, aggregateID uuid.UUID) BaseEvent {
	return BaseEvent{
		ID:            uuid.New(),
		Type:          eventType,
		Timestamp:     time.Now(),
		AggregateUUID: aggregateID,
		AggregateName: aggregateType,
	}
}

func (e BaseEvent) EventID() uuid.UUID     { return e.ID }
func (e BaseEvent) EventType() string      { return e.Type }
func (e BaseEvent) OccurredAt() time.Time  { return e.Timestamp }
func (e BaseEvent) AggregateID() uuid.UUID { return e.AggregateUUID }
func (e BaseEvent) AggregateType() string  { return e.AggregateName }

// -----------------------------------------------------------------------------
// Event Handler and Dispatcher
// -----------------------------------------------------------------------------

// EventHandler processes domain events
type EventHandler func(event Event)

// EventDispatcher manages event subscriptions and publishing
type EventDispatcher struct {
	mu          sync.RWMutex
	handlers    map[string][]EventHandler
	allHandlers []EventHandler // handlers for all events
}

// NewEventDispatcher creates a new event dispatcher
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[string][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type
func (d *EventDispatcher) Subscribe(eventType string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (d *EventDispatcher) SubscribeAll(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allHandlers = append(d.allHandlers, handler)
}

// Publish dispatches an event to all registered handlers
func (d *EventDispatcher) Publish(event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// Call type-specific handlers
	if handlers, ok := d.handlers[event.EventType()]; ok {
		for _, h := range handlers {
			h(event)
		}
	}

	// Call all-event handlers
	for _, h := range d.allHandlers {
		h(event)
	}
}

// PublishAll dispatches multiple events
func (d *EventDispatcher) PublishAll(events []Event) {
	for _, event := range events {
		d.Publish(event)
	}
}

// -----------------------------------------------------------------------------
// Aggregate Root with Event Support
// -----------------------------------------------------------------------------

// EventRecorder is an interface for aggregates that record events
type EventRecorder interface {
	// RecordedEvents returns events recorded since last clear
	RecordedEvents() []Event
	// ClearEvents clears recorded events (typically after persistence)
	ClearEvents()
}

// AggregateRoot provides base functionality for aggregates with event recording
type AggregateRoot struct {
	events []Event
}

// RecordEvent adds an event to the aggregate's recorded events
func (a *AggregateRoot) RecordEvent(event Event) {
	a.events = append(a.events, event)
}

// RecordedEvents returns all recorded events
func (a *AggregateRoot) RecordedEvents() []Event {
	return a.events
}

// ClearEvents clears recorded events
func (a *AggregateRoot) ClearEvents() {
	a.events = nil
}

// -----------------------------------------------------------------------------
// Freeze Events
// -----------------------------------------------------------------------------

// ExerciseFrozenEvent is published when an exercise revision is frozen
type ExerciseFrozenEvent struct {
	BaseEvent
	OriginalID string `json:"original_id"`
	Revision   int    `json:"revision"`
	StageCount int    `json:"stage_count"`
}

// NewExerciseFrozenEvent creates a new exercise frozen event
func NewExerciseFrozenEvent(f *FrozenExercise) ExerciseFrozenEvent {
	return ExerciseFrozenEvent{
		BaseEvent:  NewBaseEvent("exercise.frozen", "FrozenExercise", f.ID().UUID()),
		OriginalID: f.Proxy().Original.String(),
		Revision:   f.Proxy().Revision,
		StageCount: f.StageCount(),
	}
}

// FrozenExerciseRecreatedEvent is published when a course freeze had to
// re-freeze an exercise whose snapshot was missing
type FrozenExerciseRecreatedEvent struct {
	BaseEvent
	CourseID   string `json:"course_id"`
	OriginalID string `json:"original_id"`
	Revision   int    `json:"revision"`
}

// NewFrozenExerciseRecreatedEvent creates a new recreated event
func NewFrozenExerciseRecreatedEvent(course CourseID, f *FrozenExercise) FrozenExerciseRecreatedEvent {
	return FrozenExerciseRecreatedEvent{
		BaseEvent:  NewBaseEvent("exercise.frozen_recreated", "FrozenExercise", f.ID().UUID()),
		CourseID:   course.String(),
		OriginalID: f.Proxy().Original.String(),
		Revision:   f.Proxy().Revision,
	}
}

// CourseFrozenEvent is published when a course revision is frozen
type CourseFrozenEvent struct {
	BaseEvent
	OriginalID string `json:"original_id"`
	Revision   int    `json:"revision"`
	Entries    int    `json:"entries"`
}

// NewCourseFrozenEvent creates a new course frozen event
func NewCourseFrozenEvent(f *FrozenCourse) CourseFrozenEvent {
	return CourseFrozenEvent{
		BaseEvent:  NewBaseEvent("course.frozen", "FrozenCourse", f.ID().UUID()),
		OriginalID: f.Proxy().Original.String(),
		Revision:   f.Proxy().Revision,
		Entries:    len(f.entries),
	}
}

// -----------------------------------------------------------------------------
// Session Events
// -----------------------------------------------------------------------------

// StageEnteredEvent is recorded when a session enters a stage
type StageEnteredEvent struct {
	BaseEvent
	StageID      string `json:"stage_id"`
	InternalName string `json:"internal_name"`
}

// NewStageEnteredEvent creates a new stage entered event
func NewStageEnteredEvent(sessionID uuid.UUID, s *Stage) StageEnteredEvent {
	return StageEnteredEvent{
		BaseEvent:    NewBaseEvent("session.stage_entered", "Session", sessionID),
		StageID:      s.ID().String(),
		InternalName: s.InternalName(),
	}
}

// StageLeftEvent is recorded when a session leaves a stage
type StageLeftEvent struct {
	BaseEvent
	StageID string `json:"stage_id"`
	Outcome string `json:"outcome"`
	Skipped bool   `json:"skipped"`
	Points  int    `json:"points"`
}

// NewStageLeftEvent creates a new stage left event
func NewStageLeftEvent(sessionID uuid.UUID, stage StageID, outcome string, skipped bool, points int) StageLeftEvent {
	return StageLeftEvent{
		BaseEvent: NewBaseEvent("session.stage_left", "Session", sessionID),
		StageID:   stage.String(),
		Outcome:   outcome,
		Skipped:   skipped,
		Points:    points,
	}
}

// SessionFinishedEvent is recorded when a session reaches the end
type SessionFinishedEvent struct {
	BaseEvent
	ExerciseID string `json:"exercise_id"`
	Score      int    `json:"score"`
}

// NewSessionFinishedEvent creates a new session finished event
func NewSessionFinishedEvent(sessionID uuid.UUID, exercise ExerciseID, score int) SessionFinishedEvent {
	return SessionFinishedEvent{
		BaseEvent:  NewBaseEvent("session.finished", "Session", sessionID),
		ExerciseID: exercise.String(),
		Score:      score,
	}
}
