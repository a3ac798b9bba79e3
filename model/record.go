package model

import "time"

// GenerationRecord 一次生成请求的最终结果，写入审计表
type GenerationRecord struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	UserID     int64     `json:"userId" gorm:"index;not null"`
	Prompt     string    `json:"prompt" gorm:"type:text"`
	Server     string    `json:"server" gorm:"size:255"`
	JobIDs     string    `json:"jobIds" gorm:"size:512"` // 逗号分隔
	Status     JobStatus `json:"status" gorm:"size:20;index"`
	Title      string    `json:"title" gorm:"size:255"`
	FilePath   string    `json:"filePath" gorm:"size:1024"`
	ElapsedSec int       `json:"elapsedSec"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName 指定表名
func (GenerationRecord) TableName() string {
	return "generation_records"
}
