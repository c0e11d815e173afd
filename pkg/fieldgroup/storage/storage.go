// Package storage persists field group records.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("field group not found")

// Store is the persistence capability the service needs. Save and
// DeleteByBundle are atomic; Transaction groups several calls into one unit.
type Store interface {
	Load(ctx context.Context, scope models.Scope, id string) (*models.FieldGroup, error)
	ListByScope(ctx context.Context, scope models.Scope) ([]*models.FieldGroup, error)
	ListScopes(ctx context.Context) ([]models.Scope, error)
	Save(ctx context.Context, groups ...*models.FieldGroup) error
	Delete(ctx context.Context, scope models.Scope, id string) error
	DeleteByBundle(ctx context.Context, entityType, bundle string) (int64, error)
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// GormStore keeps field groups in the field_groups table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store on db. The schema must already be migrated.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func scopeQuery(tx *gorm.DB, scope models.Scope) *gorm.DB {
	return tx.Where("entity_type = ? AND bundle = ? AND mode = ?", scope.EntityType, scope.Bundle, scope.Mode)
}

func (s *GormStore) Load(ctx context.Context, scope models.Scope, id string) (*models.FieldGroup, error) {
	var g models.FieldGroup
	err := scopeQuery(s.db.WithContext(ctx), scope).Where("id = ?", id).Take(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", models.ConfigName(scope, id), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", models.ConfigName(scope, id), err)
	}
	return &g, nil
}

func (s *GormStore) ListByScope(ctx context.Context, scope models.Scope) ([]*models.FieldGroup, error) {
	var groups []*models.FieldGroup
	if err := scopeQuery(s.db.WithContext(ctx), scope).Order("weight, id").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", scope, err)
	}
	return groups, nil
}

func (s *GormStore) ListScopes(ctx context.Context) ([]models.Scope, error) {
	var scopes []models.Scope
	err := s.db.WithContext(ctx).Model(&models.FieldGroup{}).
		Select("DISTINCT entity_type, bundle, mode").
		Order("entity_type, bundle, mode").
		Scan(&scopes).Error
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	return scopes, nil
}

// Save inserts or updates groups in one transaction. A group without a UUID
// gets one; an existing group must keep the UUID it was stored with.
func (s *GormStore) Save(ctx context.Context, groups ...*models.FieldGroup) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, g := range groups {
			if err := saveOne(tx, g); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveOne(tx *gorm.DB, g *models.FieldGroup) error {
	if g.UUID == "" {
		g.UUID = uuid.NewString()
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%s: %w", g.ConfigName(), err)
	}

	var clash int64
	err := scopeQuery(tx.Model(&models.FieldGroup{}), g.Scope()).
		Where("machine_name = ? AND id <> ?", g.MachineName, g.ID).
		Count(&clash).Error
	if err != nil {
		return fmt.Errorf("check machine name: %w", err)
	}
	if clash > 0 {
		return &models.DuplicateError{List: "machine names of " + g.Scope().String(), Entry: g.MachineName}
	}

	var existing models.FieldGroup
	err = scopeQuery(tx, g.Scope()).Where("id = ?", g.ID).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var taken, retired int64
		if err := tx.Model(&models.FieldGroup{}).Where("uuid = ?", g.UUID).Count(&taken).Error; err != nil {
			return fmt.Errorf("check uuid: %w", err)
		}
		if taken > 0 {
			return &models.ValidationError{Field: "uuid", Reason: fmt.Sprintf("%s is already in use", g.UUID)}
		}
		if err := tx.Model(&models.RetiredUUID{}).Where("uuid = ?", g.UUID).Count(&retired).Error; err != nil {
			return fmt.Errorf("check uuid: %w", err)
		}
		if retired > 0 {
			return &models.ValidationError{Field: "uuid", Reason: fmt.Sprintf("%s belonged to a deleted group", g.UUID)}
		}
		if err := tx.Create(g).Error; err != nil {
			return fmt.Errorf("create %s: %w", g.ConfigName(), err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", g.ConfigName(), err)
	}

	if existing.UUID != g.UUID {
		return &models.ValidationError{Field: "uuid", Reason: "cannot change after creation"}
	}
	g.CreatedAt = existing.CreatedAt
	if err := tx.Save(g).Error; err != nil {
		return fmt.Errorf("update %s: %w", g.ConfigName(), err)
	}
	return nil
}

// Delete removes one group and retires its UUID.
func (s *GormStore) Delete(ctx context.Context, scope models.Scope, id string) error {
	name := models.ConfigName(scope, id)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g models.FieldGroup
		err := scopeQuery(tx, scope).Where("id = ?", id).Take(&g).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		if err := retire(tx, &g); err != nil {
			return err
		}
		if err := scopeQuery(tx, scope).Where("id = ?", id).Delete(&models.FieldGroup{}).Error; err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
		return nil
	})
}

// DeleteByBundle removes every group of a bundle across all its modes and
// retires their UUIDs.
func (s *GormStore) DeleteByBundle(ctx context.Context, entityType, bundle string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bundleQuery := func() *gorm.DB {
			return tx.Where("entity_type = ? AND bundle = ?", entityType, bundle)
		}
		var groups []*models.FieldGroup
		if err := bundleQuery().Find(&groups).Error; err != nil {
			return fmt.Errorf("list %s.%s: %w", entityType, bundle, err)
		}
		if err := retire(tx, groups...); err != nil {
			return err
		}
		result := bundleQuery().Delete(&models.FieldGroup{})
		if result.Error != nil {
			return fmt.Errorf("delete %s.%s: %w", entityType, bundle, result.Error)
		}
		n = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func retire(tx *gorm.DB, groups ...*models.FieldGroup) error {
	if len(groups) == 0 {
		return nil
	}
	rows := make([]models.RetiredUUID, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, models.RetiredUUID{UUID: g.UUID, ConfigName: g.ConfigName()})
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("retire uuids: %w", err)
	}
	return nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
