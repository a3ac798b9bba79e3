package repository

import (
	"context"

	"sunobot/model"

	"gorm.io/gorm"
)

// GenerationRepository 生成记录的数据访问接口
type GenerationRepository interface {
	Create(ctx context.Context, record *model.GenerationRecord) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*model.GenerationRecord, error)
}

// gormGenerationRepository GORM 实现
type gormGenerationRepository struct {
	db *gorm.DB
}

// NewGormGenerationRepository 创建 GORM 生成记录仓库
func NewGormGenerationRepository(db *gorm.DB) GenerationRepository {
	return &gormGenerationRepository{db: db}
}

// Create 写入一条记录
func (r *gormGenerationRepository) Create(ctx context.Context, record *model.GenerationRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// ListByUser 按时间倒序列出用户的记录
func (r *gormGenerationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.GenerationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []*model.GenerationRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
