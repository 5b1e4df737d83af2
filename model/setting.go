package model

import "time"

// 运行时设置键
const (
	SettingProcessorEnabled = "processor_enabled"
)

// Setting 管理员可修改的运行时键值配置
type Setting struct {
	Key       string    `json:"key" gorm:"primaryKey;size:64"`
	Value     string    `json:"value" gorm:"size:255;not null"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Setting) TableName() string {
	return "settings"
}
