package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"license-controlplane/pkg/db/option"
)

// Repository is a generic gorm-backed store. Query structs are matched by
// non-zero fields, the gorm way.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
	Create(ctx context.Context, entity *T) error
	BatchCreate(ctx context.Context, entities []*T) error
	Update(ctx context.Context, entity *T) error
	BatchUpdate(ctx context.Context, query *T, values map[string]interface{}) error
	Delete(ctx context.Context, query *T) error
}

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return s
	}
	return &store[T]{db: tx}
}

func (s *store[T]) apply(ctx context.Context, opts ...option.QueryOption) *gorm.DB {
	db := s.db.WithContext(ctx)
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var out []*T
	if err := s.apply(ctx, opts...).Where(query).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var out T
	err := s.apply(ctx, opts...).Where(query).First(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *store[T]) Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error) {
	var model T
	var count int64
	if err := s.apply(ctx, opts...).Model(&model).Where(query).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *store[T]) Create(ctx context.Context, entity *T) error {
	return s.db.WithContext(ctx).Create(entity).Error
}

func (s *store[T]) BatchCreate(ctx context.Context, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(entities, 100).Error
}

func (s *store[T]) Update(ctx context.Context, entity *T) error {
	return s.db.WithContext(ctx).Save(entity).Error
}

func (s *store[T]) BatchUpdate(ctx context.Context, query *T, values map[string]interface{}) error {
	var model T
	return s.db.WithContext(ctx).Model(&model).Where(query).Updates(values).Error
}

func (s *store[T]) Delete(ctx context.Context, query *T) error {
	var model T
	return s.db.WithContext(ctx).Where(query).Delete(&model).Error
}
