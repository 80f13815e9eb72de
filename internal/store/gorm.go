package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"procurement-backend/internal/logger"
	"procurement-backend/internal/models"
	"procurement-backend/internal/realtime"
)

// Gorm keeps documents in the "documents" table (Postgres in production,
// SQLite in tests). One BatchCommit is one database transaction.
type Gorm struct {
	db     *gorm.DB
	maxOps int
	bus    realtime.Bus
	log    *logger.Logger
}

func NewGorm(db *gorm.DB, maxOps int, bus realtime.Bus, log *logger.Logger) *Gorm {
	if bus == nil {
		bus = realtime.NewMemoryBus()
	}
	return &Gorm{
		db:     db,
		maxOps: maxOps,
		bus:    bus,
		log:    logger.OrNop(log).With("service", "GormStore"),
	}
}

func (g *Gorm) MaxBatchSize() int { return g.maxOps }

func (g *Gorm) Get(ctx context.Context, p Path) (Document, error) {
	var row models.Document
	err := g.db.WithContext(ctx).
		Where("collection = ? AND id = ?", p.Collection, p.ID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s: %w", p, err)
	}
	return fromRow(row)
}

func (g *Gorm) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	q := g.db.WithContext(ctx).Where("collection = ?", collection)
	for _, f := range filters {
		q = q.Where(datatypes.JSONQuery("data").Equals(f.Value, f.Field))
	}
	var rows []models.Document
	if err := q.Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	out := make([]Document, 0, len(rows))
	for _, r := range rows {
		doc, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (g *Gorm) Subscribe(ctx context.Context, collection string, filters ...Filter) (<-chan Snapshot, error) {
	return subscribe(ctx, g, g.bus, g.log, collection, filters)
}

func (g *Gorm) BatchCommit(ctx context.Context, mutations []Mutation) error {
	if g.maxOps > 0 && len(mutations) > g.maxOps {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(mutations), g.maxOps)
	}
	if len(mutations) == 0 {
		return nil
	}
	for _, m := range mutations {
		if err := m.validate(); err != nil {
			return err
		}
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for _, m := range mutations {
			if err := g.apply(tx, m, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	publish(ctx, g.bus, g.log, mutations)
	return nil
}

func (g *Gorm) apply(tx *gorm.DB, m Mutation, now time.Time) error {
	var (
		cur    models.Document
		exists bool
	)
	if m.Op == OpUpdate || len(m.Expect) > 0 {
		q := tx.Where("collection = ? AND id = ?", m.Path.Collection, m.Path.ID)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		err := q.First(&cur).Error
		switch {
		case err == nil:
			exists = true
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("load %s: %w", m.Path, err)
		}
		current, err := normalize(cur.Data)
		if err != nil {
			return err
		}
		if err := checkExpect(m, current, exists); err != nil {
			return err
		}
	}

	switch m.Op {
	case OpSet:
		data, err := normalize(m.Data)
		if err != nil {
			return err
		}
		row := models.Document{
			Collection: m.Path.Collection,
			ID:         m.Path.ID,
			Data:       datatypes.JSONMap(data),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&row).Error

	case OpUpdate:
		if !exists {
			return fmt.Errorf("%w: %s", ErrNotFound, m.Path)
		}
		patch, err := normalize(m.Data)
		if err != nil {
			return err
		}
		merged := datatypes.JSONMap{}
		for k, v := range cur.Data {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		return tx.Model(&models.Document{}).
			Where("collection = ? AND id = ?", m.Path.Collection, m.Path.ID).
			Updates(map[string]any{"data": merged, "updated_at": now}).Error

	case OpDelete:
		return tx.Where("collection = ? AND id = ?", m.Path.Collection, m.Path.ID).
			Delete(&models.Document{}).Error
	}
	return fmt.Errorf("%w: unknown op %q", ErrInvalidMutation, m.Op)
}

// fromRow decodes the stored JSON the same way Memory does. JSONMap.Scan keeps
// numbers as json.Number, which the field readers would not see as numbers.
func fromRow(r models.Document) (Document, error) {
	data, err := normalize(map[string]any(r.Data))
	if err != nil {
		return Document{}, fmt.Errorf("decode %s/%s: %w", r.Collection, r.ID, err)
	}
	return Document{
		Path:      Path{Collection: r.Collection, ID: r.ID},
		Data:      data,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}
