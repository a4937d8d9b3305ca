package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Stage 编排状态机的阶段名
type Stage string

const (
	StageInit             Stage = "init"
	StageParsed           Stage = "parsed"
	StageAssetsResolved   Stage = "assets_resolved"
	StageFramesComposed   Stage = "frames_composed"
	StageVideoMuxed       Stage = "video_muxed"
	StageAudioSynthesized Stage = "audio_synthesized"
	StageMerged           Stage = "merged"
	StageCleanedUp        Stage = "cleaned_up"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// StageProgress 各阶段对应的进度，单调不减
var StageProgress = map[Stage]float64{
	StageInit:             0,
	StageParsed:           0.1,
	StageAssetsResolved:   0.3,
	StageFramesComposed:   0.6,
	StageVideoMuxed:       0.75,
	StageAudioSynthesized: 0.85,
	StageMerged:           0.95,
	StageCleanedUp:        0.98,
	StageDone:             1,
}

type StageMode string

const (
	ModeGenerative StageMode = "generative"
	ModeFallback   StageMode = "fallback"
)

type ResultStatus string

const (
	ResultSuccess  ResultStatus = "success"
	ResultFallback ResultStatus = "fallback"
)

// Result 一次运行的最终结果，成功或兜底两种形态
type Result struct {
	RunID        string         `json:"runId"`
	Status       ResultStatus   `json:"status"`
	ArtifactPath string         `json:"artifactPath"`
	Duration     float64        `json:"duration"`
	Metadata     ResultMetadata `json:"metadata"`
	// 仅兜底结果
	FailedStage Stage  `json:"failedStage,omitempty"`
	Error       string `json:"error,omitempty"`
}

type ResultMetadata struct {
	Title        string              `json:"title"`
	Scenes       int                 `json:"scenes"`
	Characters   int                 `json:"characters"`
	Dialogues    int                 `json:"dialogues"`
	Frames       int                 `json:"frames"`
	FPS          int                 `json:"fps"`
	Resolution   string              `json:"resolution"`
	StageModes   map[Stage]StageMode `json:"stageModes"`
	VideoPath    string              `json:"videoPath,omitempty"`
	AudioPath    string              `json:"audioPath,omitempty"`
	PublishedURL string              `json:"publishedUrl,omitempty"`
}

// 实现 driver.Valuer 接口
func (r Result) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// 实现 sql.Scanner 接口
func (r *Result) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSON value:", value))
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, r)
}
