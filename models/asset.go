package models

import "time"

type AssetKind string

const (
	AssetCharacter AssetKind = "character"
	AssetScene     AssetKind = "scene"
)

// 资源来源
const (
	ProvenanceAI          = "ai_generated"
	ProvenancePlaceholder = "placeholder"
	ProvenanceFallback    = "fallback"
)

// VisualAsset 一张已落盘的图片资源
type VisualAsset struct {
	OwnerID    string    `json:"ownerId"`
	Kind       AssetKind `json:"kind"`
	Path       string    `json:"path"`
	Provenance string    `json:"provenance"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
}

type VideoFrame struct {
	Index            int      `json:"index"`
	ImagePath        string   `json:"imagePath"`
	Timestamp        float64  `json:"timestamp"`
	Characters       []string `json:"characters"`
	SceneID          string   `json:"sceneId"`
	SceneDescription string   `json:"sceneDescription"`
}

type ArtifactKind string

const (
	ArtifactVideo ArtifactKind = "video"
	ArtifactAudio ArtifactKind = "audio"
	ArtifactFinal ArtifactKind = "final"
)

// MediaArtifact 视频 / 音频产物；Descriptor 为 true 时是占位描述文件而非真实媒体
type MediaArtifact struct {
	Kind       ArtifactKind `json:"kind"`
	Path       string       `json:"path"`
	Format     string       `json:"format"`
	Descriptor bool         `json:"descriptor"`
	Duration   float64      `json:"duration"`
}

// AssetRecord 资源元数据旁路记录（sidecar），按实体 id 存取
type AssetRecord struct {
	ID          string    `gorm:"primaryKey;type:varchar(191)" json:"id"`
	RunID       string    `gorm:"index;type:varchar(64)" json:"runId"`
	SubjectID   string    `json:"subjectId"`
	Kind        string    `json:"kind"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Path        string    `json:"path"`
	Provenance  string    `json:"provenance"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	VoiceModel  string    `json:"voiceModel,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (AssetRecord) TableName() string {
	return "asset"
}

// AssetRecordID sidecar 主键
func AssetRecordID(runID string, kind AssetKind, subjectID string) string {
	return runID + ":" + string(kind) + ":" + subjectID
}
