// Package store is the document store collaborator: keyed JSON documents grouped
// in collections, atomic batch commits of bounded size and snapshot subscriptions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound           = errors.New("document not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrBatchTooLarge      = errors.New("batch exceeds max mutation count")
	ErrInvalidMutation    = errors.New("invalid mutation")
)

// Path addresses one document.
type Path struct {
	Collection string
	ID         string
}

func (p Path) String() string { return p.Collection + "/" + p.ID }

type Document struct {
	Path      Path
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ID is a shortcut for d.Path.ID.
func (d Document) ID() string { return d.Path.ID }

type Op string

const (
	OpSet    Op = "set"    // create or overwrite
	OpUpdate Op = "update" // merge top-level fields into an existing document
	OpDelete Op = "delete"
)

type Mutation struct {
	Op   Op
	Path Path
	Data map[string]any
	// Expect holds top-level field values the current document must have for the
	// whole batch to commit. A missing document never satisfies a non-empty Expect.
	Expect map[string]any
}

func Set(p Path, data map[string]any) Mutation    { return Mutation{Op: OpSet, Path: p, Data: data} }
func Update(p Path, data map[string]any) Mutation { return Mutation{Op: OpUpdate, Path: p, Data: data} }
func Delete(p Path) Mutation                      { return Mutation{Op: OpDelete, Path: p} }

func (m Mutation) validate() error {
	if m.Path.Collection == "" || m.Path.ID == "" {
		return fmt.Errorf("%w: empty path %q", ErrInvalidMutation, m.Path.String())
	}
	switch m.Op {
	case OpSet, OpUpdate, OpDelete:
		return nil
	}
	return fmt.Errorf("%w: unknown op %q", ErrInvalidMutation, m.Op)
}

// Filter is an equality match on a top-level field.
type Filter struct {
	Field string
	Value any
}

func Where(field string, value any) Filter { return Filter{Field: field, Value: value} }

// Snapshot is the full result of a subscribed query at one point in time.
type Snapshot struct {
	Collection string
	Docs       []Document
	At         time.Time
}

type Store interface {
	Get(ctx context.Context, p Path) (Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	// Subscribe sends the current snapshot immediately, then a fresh one after
	// every committed batch touching collection. The channel closes with ctx.
	Subscribe(ctx context.Context, collection string, filters ...Filter) (<-chan Snapshot, error)
	// BatchCommit applies all mutations atomically or none of them.
	BatchCommit(ctx context.Context, mutations []Mutation) error
	// MaxBatchSize is the largest mutation count BatchCommit accepts; 0 means no limit.
	MaxBatchSize() int
}

// normalize round-trips data through JSON so every backend hands out the same
// value shapes (float64, string, bool, []any, map[string]any).
func normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !sameValue(data[f.Field], f.Value) {
			return false
		}
	}
	return true
}

func sameValue(current, want any) bool {
	if current == nil || want == nil {
		return current == nil && want == nil
	}
	return fmt.Sprint(current) == fmt.Sprint(want)
}

func checkExpect(m Mutation, data map[string]any, exists bool) error {
	if len(m.Expect) == 0 {
		return nil
	}
	if !exists {
		return fmt.Errorf("%w: %s does not exist", ErrPreconditionFailed, m.Path)
	}
	for k, v := range m.Expect {
		if !sameValue(data[k], v) {
			return fmt.Errorf("%w: %s.%s is %v, want %v", ErrPreconditionFailed, m.Path, k, data[k], v)
		}
	}
	return nil
}

func touched(mutations []Mutation) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range mutations {
		if !seen[m.Path.Collection] {
			seen[m.Path.Collection] = true
			out = append(out, m.Path.Collection)
		}
	}
	return out
}
