package repository

import (
	"context"
	"time"

	"riskengine/src/database"
	"riskengine/src/model"

	"gorm.io/gorm"
)

const defaultRecentLimit = 100

// RiskEventRepository is the journal of delivered risk events.
type RiskEventRepository struct {
	db *gorm.DB
}

func NewRiskEventRepository() *RiskEventRepository {
	return &RiskEventRepository{db: database.MainDB}
}

func NewRiskEventRepositoryWithDB(db *gorm.DB) *RiskEventRepository {
	return &RiskEventRepository{db: db}
}

func (r *RiskEventRepository) Create(ctx context.Context, record *model.RiskEventRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// Recent returns up to limit events, newest first.
func (r *RiskEventRepository) Recent(ctx context.Context, limit int) ([]model.RiskEventRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	var out []model.RiskEventRecord
	err := r.db.WithContext(ctx).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ByKind returns events of one kind since the given time, oldest first.
func (r *RiskEventRepository) ByKind(ctx context.Context, kind model.EventKind, since time.Time) ([]model.RiskEventRecord, error) {
	var out []model.RiskEventRecord
	err := r.db.WithContext(ctx).
		Where("kind = ? AND timestamp >= ?", string(kind), since).
		Order("timestamp ASC, id ASC").
		Find(&out).Error
	return out, err
}
