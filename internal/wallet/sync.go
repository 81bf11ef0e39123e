package wallet

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/googlepaypasses/internal/domain"
	"github.com/robertarktes/googlepaypasses/internal/observability"
)

// Remote is the subset of Client used by the Synchronizer.
type Remote interface {
	Get(ctx context.Context, resource ResourceType, id string) (json.RawMessage, bool, error)
	Insert(ctx context.Context, resource ResourceType, payload interface{}) (string, error)
	Update(ctx context.Context, resource ResourceType, id string, payload interface{}) error
}

// PositionStore owns the googlepaypass marker on order positions.
type PositionStore interface {
	GetPosition(ctx context.Context, id uuid.UUID) (*domain.Position, error)
	SetWalletObjectID(ctx context.Context, id uuid.UUID, objectID string) error
	// ClearWalletObjectID removes the marker only while it still equals objectID.
	ClearWalletObjectID(ctx context.Context, id uuid.UUID, objectID string) error
}

type EventSource interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error)
}

type Auditor interface {
	Record(ctx context.Context, action, subject string, data map[string]interface{}) error
}

// Synchronizer keeps remote classes and objects in line with local tickets.
//
// The marker stored on a position is trusted: present means an object exists remotely
// (active or inactive), absent means none was created or it was shredded. The marker is
// only written after the API confirmed the change.
type Synchronizer struct {
	remote    Remote
	positions PositionStore
	events    EventSource
	builder   *Builder
	audit     Auditor
	logger    observability.Logger
}

// NewSynchronizer wires the collaborators. audit may be nil.
func NewSynchronizer(remote Remote, positions PositionStore, events EventSource, builder *Builder, audit Auditor, logger observability.Logger) *Synchronizer {
	return &Synchronizer{
		remote:    remote,
		positions: positions,
		events:    events,
		builder:   builder,
		audit:     audit,
		logger:    logger,
	}
}

// EnsureClass creates the event's class unless it already exists.
func (s *Synchronizer) EnsureClass(ctx context.Context, ev *domain.Event) (string, error) {
	classID := s.builder.ClassID(ev)
	_, found, err := s.remote.Get(ctx, EventTicketClassResource, classID)
	if err != nil {
		return "", errors.Wrapf(err, "look up class %s", classID)
	}
	if found {
		return classID, nil
	}

	if _, err := s.remote.Insert(ctx, EventTicketClassResource, s.builder.Class(ctx, ev)); err != nil {
		return "", errors.Wrapf(err, "create class %s", classID)
	}
	s.record(ctx, "class.created", classID, map[string]interface{}{"event_id": ev.ID.String()})
	s.logger.WithField("class_id", classID).Info("wallet class created")
	return classID, nil
}

// RefreshClass pushes current event metadata to an existing class. A class that was
// never created stays uncreated; updated reports whether a write happened.
func (s *Synchronizer) RefreshClass(ctx context.Context, eventID uuid.UUID) (bool, error) {
	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return false, errors.Wrapf(err, "load event %s", eventID)
	}
	classID := s.builder.ClassID(ev)
	_, found, err := s.remote.Get(ctx, EventTicketClassResource, classID)
	if err != nil {
		return false, errors.Wrapf(err, "look up class %s", classID)
	}
	if !found {
		return false, nil
	}
	if err := s.remote.Update(ctx, EventTicketClassResource, classID, s.builder.Class(ctx, ev)); err != nil {
		return false, errors.Wrapf(err, "update class %s", classID)
	}
	s.record(ctx, "class.updated", classID, map[string]interface{}{"event_id": eventID.String()})
	return true, nil
}

// Generate makes sure the position has an active object and returns its id.
func (s *Synchronizer) Generate(ctx context.Context, positionID uuid.UUID) (string, error) {
	pos, ev, err := s.load(ctx, positionID)
	if err != nil {
		return "", err
	}
	if _, err := s.EnsureClass(ctx, ev); err != nil {
		return "", err
	}

	// Re-read the marker: a concurrent job may have created the object meanwhile.
	pos, err = s.positions.GetPosition(ctx, positionID)
	if err != nil {
		return "", errors.Wrapf(err, "reload position %s", positionID)
	}

	if objectID := pos.MetaInfo.WalletObjectID(); objectID != "" {
		payload := s.builder.Object(ev, pos, objectID, StateActive)
		if err := s.remote.Update(ctx, EventTicketObjectResource, objectID, payload); err != nil {
			return "", errors.Wrapf(err, "update object %s", objectID)
		}
		return objectID, nil
	}

	payload := s.builder.Object(ev, pos, s.builder.NewObjectID(ev, pos), StateActive)
	objectID, err := s.remote.Insert(ctx, EventTicketObjectResource, payload)
	if err != nil {
		return "", errors.Wrapf(err, "create object for position %s", positionID)
	}
	if err := s.positions.SetWalletObjectID(ctx, positionID, objectID); err != nil {
		return "", errors.Wrapf(err, "remember object %s", objectID)
	}
	s.record(ctx, "object.created", objectID, map[string]interface{}{"position_id": positionID.String()})
	s.logger.WithField("object_id", objectID).Info("wallet object created")
	return objectID, nil
}

// RefreshObject re-uploads an issued object after ticket fields changed. Positions
// without a marker are left alone.
func (s *Synchronizer) RefreshObject(ctx context.Context, positionID uuid.UUID) (bool, error) {
	pos, ev, err := s.load(ctx, positionID)
	if err != nil {
		return false, err
	}
	objectID := pos.MetaInfo.WalletObjectID()
	if objectID == "" {
		return false, nil
	}
	if err := s.remote.Update(ctx, EventTicketObjectResource, objectID, s.builder.Object(ev, pos, objectID, StateActive)); err != nil {
		return false, errors.Wrapf(err, "update object %s", objectID)
	}
	s.record(ctx, "object.updated", objectID, map[string]interface{}{"position_id": positionID.String()})
	return true, nil
}

// Shred deactivates the position's object and forgets it, so the next Generate issues
// a new one. Without a marker there is nothing to do.
func (s *Synchronizer) Shred(ctx context.Context, positionID uuid.UUID) error {
	pos, err := s.positions.GetPosition(ctx, positionID)
	if err != nil {
		return errors.Wrapf(err, "load position %s", positionID)
	}
	objectID := pos.MetaInfo.WalletObjectID()
	if objectID == "" {
		return nil
	}
	ev, err := s.events.GetEvent(ctx, pos.EventID)
	if err != nil {
		return errors.Wrapf(err, "load event %s", pos.EventID)
	}

	if err := s.remote.Update(ctx, EventTicketObjectResource, objectID, s.builder.Object(ev, pos, objectID, StateInactive)); err != nil {
		return errors.Wrapf(err, "shred object %s", objectID)
	}
	if err := s.positions.ClearWalletObjectID(ctx, positionID, objectID); err != nil {
		return errors.Wrapf(err, "forget object %s", objectID)
	}
	s.record(ctx, "object.shredded", objectID, map[string]interface{}{"position_id": positionID.String()})
	s.logger.WithField("object_id", objectID).Info("wallet object shredded")
	return nil
}

// ShredObject deactivates an object by id alone. Operators use it for objects no
// local position refers to any more.
func (s *Synchronizer) ShredObject(ctx context.Context, objectID string) error {
	raw, found, err := s.remote.Get(ctx, EventTicketObjectResource, objectID)
	if err != nil {
		return errors.Wrapf(err, "look up object %s", objectID)
	}
	if !found {
		return errors.Wrapf(domain.ErrNotFound, "object %s", objectID)
	}
	var existing struct {
		ClassID string `json:"classId"`
	}
	if err := json.Unmarshal(raw, &existing); err != nil {
		return errors.Wrapf(err, "decode object %s", objectID)
	}

	payload := &EventTicketObject{ID: objectID, ClassID: existing.ClassID, State: StateInactive}
	if err := s.remote.Update(ctx, EventTicketObjectResource, objectID, payload); err != nil {
		return errors.Wrapf(err, "shred object %s", objectID)
	}
	s.record(ctx, "object.shredded", objectID, map[string]interface{}{"manual": true})
	return nil
}

func (s *Synchronizer) load(ctx context.Context, positionID uuid.UUID) (*domain.Position, *domain.Event, error) {
	pos, err := s.positions.GetPosition(ctx, positionID)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "load position %s", positionID)
	}
	ev, err := s.events.GetEvent(ctx, pos.EventID)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "load event %s", pos.EventID)
	}
	return pos, ev, nil
}

func (s *Synchronizer) record(ctx context.Context, action, subject string, data map[string]interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, action, subject, data); err != nil {
		s.logger.WithField("action", action).Warn("audit record failed: ", err)
	}
}
