package models

import "time"

type AuditAction string

const (
	AuditActionCreate  AuditAction = "create"
	AuditActionUpdate  AuditAction = "update"
	AuditActionDelete  AuditAction = "delete"
	AuditActionImport  AuditAction = "import"
	AuditActionReceive AuditAction = "receive"
	AuditActionUndo    AuditAction = "undo"
)

// Undoable: only single document writes can be reverted from their snapshot.
func (a AuditAction) Undoable() bool {
	return a == AuditActionCreate || a == AuditActionUpdate || a == AuditActionDelete
}

type AuditLog struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID   string `json:"user_id"`
	UserName string `json:"user_name"` // denormalized

	// collection name of the entity, e.g. "orders", "ingredients"
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`

	Action      AuditAction `json:"action"`
	Description string      `json:"description"`

	// JSON of the entity before/after the change, "null" when absent
	BeforeData string `json:"before_data"`
	AfterData  string `json:"after_data"`

	IsUndone bool       `json:"is_undone"`
	UndoneBy string     `json:"undone_by,omitempty"`
	UndoneAt *time.Time `json:"undone_at,omitempty"`
}

func AuditLogFromData(id string, data map[string]any, createdAt time.Time) AuditLog {
	l := AuditLog{
		ID:          id,
		CreatedAt:   createdAt,
		UserID:      str(data, "userId"),
		UserName:    str(data, "userName"),
		EntityType:  str(data, "entityType"),
		EntityID:    str(data, "entityId"),
		Action:      AuditAction(str(data, "action")),
		Description: str(data, "description"),
		BeforeData:  str(data, "beforeData"),
		AfterData:   str(data, "afterData"),
		IsUndone:    boolean(data, "isUndone", false),
		UndoneBy:    str(data, "undoneBy"),
	}
	if t := timeOf(data, "undoneAt"); !t.IsZero() {
		l.UndoneAt = &t
	}
	return l
}

func (l AuditLog) Data() map[string]any {
	d := map[string]any{
		"userId":      l.UserID,
		"userName":    l.UserName,
		"entityType":  l.EntityType,
		"entityId":    l.EntityID,
		"action":      string(l.Action),
		"description": l.Description,
		"beforeData":  l.BeforeData,
		"afterData":   l.AfterData,
		"isUndone":    l.IsUndone,
	}
	if l.UndoneBy != "" {
		d["undoneBy"] = l.UndoneBy
	}
	if l.UndoneAt != nil {
		d["undoneAt"] = timeString(*l.UndoneAt)
	}
	return d
}
