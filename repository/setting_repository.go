package repository

import (
	"context"
	"errors"
	"strconv"

	"DropFM/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepository 运行时设置
type SettingRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	GetBool(ctx context.Context, key string) (value bool, ok bool, err error)
}

type gormSettingRepository struct {
	db *gorm.DB
}

// NewGormSettingRepository 创建设置仓库
func NewGormSettingRepository(db *gorm.DB) SettingRepository {
	return &gormSettingRepository{db: db}
}

func (r *gormSettingRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var s model.Setting
	err := r.db.WithContext(ctx).Where("`key` = ?", key).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return s.Value, true, nil
}

// Set upserts the value.
func (r *gormSettingRepository) Set(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&model.Setting{Key: key, Value: value}).Error
}

// GetBool parses a stored boolean; ok is false when the key is unset.
func (r *gormSettingRepository) GetBool(ctx context.Context, key string) (bool, bool, error) {
	raw, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return false, false, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, err
	}
	return v, true, nil
}
