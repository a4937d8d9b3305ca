package models

// Character 剧本角色，Name 在同一文档内唯一
type Character struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Gender      string              `json:"gender"`
	Age         string              `json:"age"`
	Appearance  string              `json:"appearance"`
	Attributes  CharacterAttributes `json:"attributes"`
	ImagePath   string              `json:"imagePath,omitempty"`
}

// CharacterAttributes 由描述关键词推断
type CharacterAttributes struct {
	Gender     string `json:"gender"`
	AgeBand    string `json:"ageBand"`
	Style      string `json:"style"`
	VoiceModel string `json:"voiceModel"`
}

type Scene struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Duration    float64  `json:"duration,omitempty"` // 0 表示未指定
	Characters  []string `json:"characters"`
	Actions     []string `json:"actions"`
}

// EffectiveDuration 未指定时长时使用默认值
func (s Scene) EffectiveDuration(fallback float64) float64 {
	if s.Duration > 0 {
		return s.Duration
	}
	return fallback
}

type DialogueLine struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
	Emotion string `json:"emotion"`
	SceneID string `json:"sceneId,omitempty"`
}

type ScriptSummary struct {
	TotalScenes     int `json:"totalScenes"`
	TotalCharacters int `json:"totalCharacters"`
	TotalDialogues  int `json:"totalDialogues"`
}

// ScriptDocument 结构化剧本，解析后只读
type ScriptDocument struct {
	Title      string         `json:"title"`
	Characters []Character    `json:"characters"`
	Scenes     []Scene        `json:"scenes"`
	Dialogues  []DialogueLine `json:"dialogues"`
	Summary    ScriptSummary  `json:"summary"`
}
