package model

import "time"

// SourceKind 上传来源类型
type SourceKind string

const (
	SourceFile    SourceKind = "file"
	SourceYouTube SourceKind = "youtube"
	SourceSpotify SourceKind = "spotify"
)

// Valid reports whether k is one of the known source kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceFile, SourceYouTube, SourceSpotify:
		return true
	}
	return false
}

// UploadStatus 上传状态
type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s UploadStatus) Terminal() bool {
	return s == UploadStatusCompleted || s == UploadStatusFailed
}

// Predecessors lists the states a row must be in to move to s.
// pending is only ever written by Create, so it has none.
func (s UploadStatus) Predecessors() []UploadStatus {
	switch s {
	case UploadStatusProcessing:
		return []UploadStatus{UploadStatusPending}
	case UploadStatusCompleted:
		return []UploadStatus{UploadStatusProcessing}
	case UploadStatusFailed:
		// an attempt can fail before acquisition starts (e.g. staging allocation)
		// pending is allowed so that a staging or store failure before the
		// processing transition still ends in a recorded failure
		return []UploadStatus{UploadStatusPending, UploadStatusProcessing}
	}
	return nil
}

// CanTransition reports whether from -> to is a forward move of the state machine.
func CanTransition(from, to UploadStatus) bool {
	for _, p := range to.Predecessors() {
		if p == from {
			return true
		}
	}
	return false
}

const (
	MaxSourceLength       = 1024
	MaxErrorMessageLength = 1000
)

// UploadLog 一次上传尝试的审计记录
type UploadLog struct {
	ID           int64        `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       int64        `json:"userId" gorm:"index;not null"`
	SourceKind   SourceKind   `json:"uploadType" gorm:"column:upload_type;size:16;not null"`
	Source       string       `json:"source" gorm:"size:1024;not null"`
	Status       UploadStatus `json:"status" gorm:"size:16;not null;index"`
	FileCount    int          `json:"fileCount" gorm:"not null;default:0"`
	ErrorMessage *string      `json:"errorMessage,omitempty" gorm:"type:text"`
	StagingDir   string       `json:"-" gorm:"size:1024"`
	CreatedAt    time.Time    `json:"createdAt" gorm:"index"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
}

// TableName 指定表名
func (UploadLog) TableName() string {
	return "upload_logs"
}

// TransitionFields carries the columns written alongside a status change.
// For terminal states FileCount and CompletedAt are always written.
type TransitionFields struct {
	FileCount    int
	ErrorMessage string
	StagingDir   string
	CompletedAt  time.Time
}

// UploadLogFilter 查询条件，零值字段不参与过滤
type UploadLogFilter struct {
	UserID     int64
	Status     UploadStatus
	SourceKind SourceKind
	Limit      int
	Offset     int
}

// TruncateRunes cuts s to at most n characters.
func TruncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
