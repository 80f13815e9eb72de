package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"procurement-backend/internal/logger"
	"procurement-backend/internal/models"
	"procurement-backend/internal/store"
)

var (
	ErrLogNotFound   = errors.New("audit log not found")
	ErrAlreadyUndone = errors.New("audit log already undone")
	ErrNotUndoable   = errors.New("audit action cannot be undone")
)

// Actor is the user a write is attributed to.
type Actor struct {
	ID   string
	Name string
}

type actorKey struct{}

// WithActor attaches the acting user to ctx; WriteLog reads it back.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

type LogOptions struct {
	EntityType  string
	EntityID    string
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

type Service struct {
	store store.Store
	log   *logger.Logger
	now   func() time.Time
}

func NewService(s store.Store, log *logger.Logger) *Service {
	return &Service{store: s, log: logger.OrNop(log).With("service", "AuditService"), now: time.Now}
}

// Mutation builds the audit log write for opts so callers can commit it in the
// same batch as the change it describes. Safe on a nil Service.
func (s *Service) Mutation(ctx context.Context, opts LogOptions) store.Mutation {
	actor := ActorFrom(ctx)
	entry := models.AuditLog{
		UserID:      actor.ID,
		UserName:    actor.Name,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  snapshot(opts.Before),
		AfterData:   snapshot(opts.After),
	}
	path := store.Path{Collection: models.CollectionAuditLogs, ID: uuid.NewString()}
	return store.Set(path, entry.Data())
}

// WriteLog appends one audit entry. A nil Service writes nothing.
func (s *Service) WriteLog(ctx context.Context, opts LogOptions) error {
	if s == nil {
		return nil
	}
	if err := s.store.BatchCommit(ctx, []store.Mutation{s.Mutation(ctx, opts)}); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Record is WriteLog for callers that must not fail because auditing did.
func (s *Service) Record(ctx context.Context, opts LogOptions) {
	if err := s.WriteLog(ctx, opts); err != nil {
		s.log.Warn("audit log dropped", "entity_type", opts.EntityType, "entity_id", opts.EntityID, "error", err)
	}
}

type Filter struct {
	EntityType string
	EntityID   string
	UserID     string
}

// List returns matching entries newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]models.AuditLog, error) {
	var filters []store.Filter
	if f.EntityType != "" {
		filters = append(filters, store.Where("entityType", f.EntityType))
	}
	if f.EntityID != "" {
		filters = append(filters, store.Where("entityId", f.EntityID))
	}
	if f.UserID != "" {
		filters = append(filters, store.Where("userId", f.UserID))
	}
	docs, err := s.store.Query(ctx, models.CollectionAuditLogs, filters...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	out := make([]models.AuditLog, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.AuditLogFromData(d.ID(), d.Data, d.CreatedAt))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Undo reverts the document write recorded by logID: a create is deleted, an
// update or delete is restored from its before snapshot. The reverted write,
// the undone flag and the new undo entry commit together.
func (s *Service) Undo(ctx context.Context, logID string) error {
	doc, err := s.store.Get(ctx, store.Path{Collection: models.CollectionAuditLogs, ID: logID})
	if errors.Is(err, store.ErrNotFound) {
		return ErrLogNotFound
	}
	if err != nil {
		return err
	}
	entry := models.AuditLogFromData(doc.ID(), doc.Data, doc.CreatedAt)
	if entry.IsUndone {
		return ErrAlreadyUndone
	}
	if !entry.Action.Undoable() || entry.EntityType == "" || entry.EntityID == "" {
		return ErrNotUndoable
	}

	target := store.Path{Collection: entry.EntityType, ID: entry.EntityID}
	var revert store.Mutation
	switch entry.Action {
	case models.AuditActionCreate:
		revert = store.Delete(target)
	case models.AuditActionUpdate, models.AuditActionDelete:
		before, err := restore(entry.BeforeData)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotUndoable, err)
		}
		revert = store.Set(target, before)
	}

	actor := ActorFrom(ctx)
	now := s.now()
	mark := store.Update(doc.Path, map[string]any{
		"isUndone": true,
		"undoneBy": actor.ID,
		"undoneAt": now.UTC().Format(time.RFC3339Nano),
	})
	mark.Expect = map[string]any{"isUndone": false}

	undoEntry := s.Mutation(ctx, LogOptions{
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		Action:      models.AuditActionUndo,
		Description: "Deshecho: " + entry.Description,
	})
	// the undo entry carries the snapshots swapped
	undoEntry.Data["beforeData"] = entry.AfterData
	undoEntry.Data["afterData"] = entry.BeforeData

	err = s.store.BatchCommit(ctx, []store.Mutation{revert, mark, undoEntry})
	if errors.Is(err, store.ErrPreconditionFailed) {
		return ErrAlreadyUndone
	}
	if err != nil {
		return fmt.Errorf("undo %s: %w", logID, err)
	}
	s.log.Info("audit log undone", "log_id", logID, "entity", target.String(), "user_id", actor.ID)
	return nil
}

// snapshot encodes v as JSON, "null" when absent or unencodable.
func snapshot(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func restore(raw string) (map[string]any, error) {
	if raw == "" || raw == "null" {
		return nil, errors.New("no snapshot recorded")
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return data, nil
}
