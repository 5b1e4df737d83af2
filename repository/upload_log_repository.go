package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DropFM/model"

	"gorm.io/gorm"
)

// ErrInvalidTransition is returned when a row is not in a state that may
// move to the requested status, or does not exist.
var ErrInvalidTransition = errors.New("invalid upload status transition")

const defaultListLimit = 50

// UploadLogRepository 上传日志数据访问接口
type UploadLogRepository interface {
	Create(ctx context.Context, log *model.UploadLog) (int64, error)
	Transition(ctx context.Context, id int64, to model.UploadStatus, fields model.TransitionFields) error
	GetByID(ctx context.Context, id int64) (*model.UploadLog, error)
	List(ctx context.Context, filter model.UploadLogFilter) ([]*model.UploadLog, error)
	FailInterrupted(ctx context.Context, reason string) (int64, error)
}

// gormUploadLogRepository GORM 实现
type gormUploadLogRepository struct {
	db *gorm.DB
}

// NewGormUploadLogRepository 创建 GORM 上传日志仓库
func NewGormUploadLogRepository(db *gorm.DB) UploadLogRepository {
	return &gormUploadLogRepository{db: db}
}

// Create 插入一条 pending 记录
func (r *gormUploadLogRepository) Create(ctx context.Context, log *model.UploadLog) (int64, error) {
	log.ID = 0
	log.Status = model.UploadStatusPending
	log.Source = model.TruncateRunes(log.Source, model.MaxSourceLength)
	log.FileCount = 0
	log.ErrorMessage = nil
	log.CompletedAt = nil
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return 0, fmt.Errorf("failed to insert upload log: %w", err)
	}
	return log.ID, nil
}

// Transition moves a row forward with one conditional UPDATE. The WHERE
// clause on the predecessor states makes concurrent or repeated terminal
// writes lose instead of overwrite.
func (r *gormUploadLogRepository) Transition(ctx context.Context, id int64, to model.UploadStatus, fields model.TransitionFields) error {
	from := to.Predecessors()
	if len(from) == 0 {
		return fmt.Errorf("%w: cannot move to %s", ErrInvalidTransition, to)
	}

	updates := map[string]interface{}{"status": to}
	if fields.StagingDir != "" {
		updates["staging_dir"] = fields.StagingDir
	}
	if to.Terminal() {
		completed := fields.CompletedAt
		if completed.IsZero() {
			completed = time.Now().UTC()
		}
		updates["file_count"] = fields.FileCount
		updates["completed_at"] = completed
		if to == model.UploadStatusFailed {
			msg := fields.ErrorMessage
			if msg == "" {
				msg = "unknown error"
			}
			updates["error_message"] = model.TruncateRunes(msg, model.MaxErrorMessageLength)
		} else {
			updates["error_message"] = nil
		}
	}

	res := r.db.WithContext(ctx).Model(&model.UploadLog{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update upload log %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: upload %d to %s", ErrInvalidTransition, id, to)
	}
	return nil
}

// GetByID 根据ID获取上传记录
func (r *gormUploadLogRepository) GetByID(ctx context.Context, id int64) (*model.UploadLog, error) {
	var log model.UploadLog
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

// List 按条件查询，最新的在前
func (r *gormUploadLogRepository) List(ctx context.Context, filter model.UploadLogFilter) ([]*model.UploadLog, error) {
	q := r.db.WithContext(ctx).Model(&model.UploadLog{})
	if filter.UserID > 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.SourceKind != "" {
		q = q.Where("upload_type = ?", filter.SourceKind)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var logs []*model.UploadLog
	err := q.Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&logs).Error
	return logs, err
}

// FailInterrupted marks rows left unfinished by a previous process as failed.
func (r *gormUploadLogRepository) FailInterrupted(ctx context.Context, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.UploadLog{}).
		Where("status IN ?", []model.UploadStatus{model.UploadStatusPending, model.UploadStatusProcessing}).
		Updates(map[string]interface{}{
			"status":        model.UploadStatusFailed,
			"error_message": model.TruncateRunes(reason, model.MaxErrorMessageLength),
			"completed_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to recover interrupted uploads: %w", res.Error)
	}
	return res.RowsAffected, nil
}
