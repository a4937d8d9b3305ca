package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// RunRequest 提交一次渲染所需的输入
type RunRequest struct {
	Title  string `json:"title"`
	Script string `json:"content" binding:"required"`
}

// Run 一次流水线运行的持久化状态
type Run struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title      string    `json:"title"`
	ScriptText string    `gorm:"type:text" json:"-"`
	Stage      Stage     `gorm:"type:varchar(32)" json:"stage"`
	Progress   float64   `json:"progress"`
	Terminal   bool      `json:"terminal"`
	Result     *Result   `gorm:"type:json" json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (Run) TableName() string {
	return "run"
}

var ErrRunNotFound = errors.New("run not found")

func CreateRun(db *gorm.DB, r *Run) error {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	return db.Create(r).Error
}

func GetRunByID(db *gorm.DB, id string) (*Run, error) {
	var r Run
	if err := db.First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &r, nil
}

// AdvanceRun 比较并交换：只在未终止且进度不回退时更新，返回是否生效
func AdvanceRun(db *gorm.DB, id string, stage Stage, progress float64) (bool, error) {
	tx := db.Model(&Run{}).
		Where("id = ? AND terminal = ? AND progress <= ?", id, false, progress).
		Updates(map[string]interface{}{
			"stage":      stage,
			"progress":   progress,
			"updated_at": time.Now(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// FinishRun 写入终态，只生效一次
func FinishRun(db *gorm.DB, id string, stage Stage, progress float64, result Result) (bool, error) {
	tx := db.Model(&Run{}).
		Where("id = ? AND terminal = ?", id, false).
		Updates(map[string]interface{}{
			"stage":      stage,
			"progress":   gorm.Expr("GREATEST(progress, ?)", progress),
			"terminal":   true,
			"result":     result,
			"error":      result.Error,
			"updated_at": time.Now(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// SaveAssetRecord upsert 资源旁路记录
func SaveAssetRecord(db *gorm.DB, rec *AssetRecord) error {
	return db.Save(rec).Error
}

func GetAssetRecord(db *gorm.DB, id string) (*AssetRecord, error) {
	var rec AssetRecord
	if err := db.First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}
