// Package script 把自由文本剧本解析为结构化的 ScriptDocument。
package script

import (
	"fmt"
	"strings"

	"ScriptToVideo-server/models"
	"ScriptToVideo-server/rules"
)

const (
	DefaultTitle = "untitled"
	sceneMarker  = "场景"
	roleMarker   = "角色"
)

// Parser 行扫描解析器，规则表可替换
type Parser struct {
	rules *rules.Set
}

func NewParser(set *rules.Set) *Parser {
	if set == nil {
		set = rules.Default()
	}
	return &Parser{rules: set}
}

// parseState 单次解析的可变状态
type parseState struct {
	doc       models.ScriptDocument
	seen      map[string]bool
	current   int // 当前场景下标，-1 表示尚无场景
	pending   []string
	hasMarker bool
}

// Parse 永不失败；没有任何结构标记时返回最小文档
func (p *Parser) Parse(raw string) models.ScriptDocument {
	st := &parseState{
		seen:    make(map[string]bool),
		current: -1,
	}
	title := ""

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case SceneRegex.MatchString(line):
			st.hasMarker = true
			p.addScene(st, SceneRegex.FindStringSubmatch(line)[1])
		case CharacterRegex.MatchString(line):
			st.hasMarker = true
			p.addCharacter(st, CharacterRegex.FindStringSubmatch(line)[1])
		case strings.HasPrefix(line, sceneMarker) || strings.HasPrefix(line, roleMarker):
			// 标记行但格式不完整，忽略
		case DialogueRegex.MatchString(line):
			m := DialogueRegex.FindStringSubmatch(line)
			speaker := strings.TrimSpace(m[1])
			content := strings.TrimSpace(m[2])
			if speaker == "" || content == "" {
				continue
			}
			st.hasMarker = true
			p.addDialogue(st, speaker, content)
		default:
			if title == "" {
				title = line
			}
		}
	}

	if !st.hasMarker {
		return models.ScriptDocument{
			Title:      DefaultTitle,
			Characters: []models.Character{},
			Scenes:     []models.Scene{},
			Dialogues:  []models.DialogueLine{},
		}
	}

	doc := st.doc
	if title == "" {
		title = DefaultTitle
	}
	doc.Title = title
	if doc.Characters == nil {
		doc.Characters = []models.Character{}
	}
	if doc.Scenes == nil {
		doc.Scenes = []models.Scene{}
	}
	if doc.Dialogues == nil {
		doc.Dialogues = []models.DialogueLine{}
	}
	doc.Summary = models.ScriptSummary{
		TotalScenes:     len(doc.Scenes),
		TotalCharacters: len(doc.Characters),
		TotalDialogues:  len(doc.Dialogues),
	}
	return doc
}

func (p *Parser) addScene(st *parseState, desc string) {
	desc = strings.TrimSpace(desc)
	scene := models.Scene{
		ID:          fmt.Sprintf("scene_%d", len(st.doc.Scenes)+1),
		Description: desc,
		Location:    desc,
		Characters:  []string{},
		Actions:     []string{},
	}
	st.doc.Scenes = append(st.doc.Scenes, scene)
	st.current = len(st.doc.Scenes) - 1

	// 第一个场景之前出现的角色和台词归入该场景
	if st.current == 0 {
		for _, name := range st.pending {
			joinScene(&st.doc.Scenes[0], name)
		}
		st.pending = nil
		for i := range st.doc.Dialogues {
			if st.doc.Dialogues[i].SceneID == "" {
				st.doc.Dialogues[i].SceneID = scene.ID
			}
		}
	}
}

func (p *Parser) addCharacter(st *parseState, body string) {
	body = strings.TrimSpace(body)
	name, gender, age, appearance := body, "", "", ""
	desc := ""
	if m := ParenRegex.FindStringSubmatch(body); m != nil {
		name = strings.TrimSpace(m[1])
		desc = strings.TrimSpace(m[2])
		fields := FieldSepRegex.Split(desc, -1)
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if len(fields) > 0 {
			gender = fields[0]
		}
		if len(fields) > 1 {
			age = fields[1]
		}
		if len(fields) > 2 {
			appearance = fields[2]
		}
	}
	if name == "" || st.seen[name] {
		return
	}
	st.seen[name] = true

	// Description 保留完整角色文本，属性只从括号内字段推断
	attrs := p.InferAttributes(desc)
	st.doc.Characters = append(st.doc.Characters, models.Character{
		ID:          name,
		Name:        name,
		Description: body,
		Gender:      gender,
		Age:         age,
		Appearance:  appearance,
		Attributes:  attrs,
	})
	p.attach(st, name)
}

func (p *Parser) addDialogue(st *parseState, speaker, content string) {
	line := models.DialogueLine{
		Speaker: speaker,
		Content: content,
		Emotion: p.rules.Emotion.Match(content),
	}
	if st.current >= 0 {
		line.SceneID = st.doc.Scenes[st.current].ID
	}
	st.doc.Dialogues = append(st.doc.Dialogues, line)
	if st.seen[speaker] {
		p.attach(st, speaker)
	}
}

func (p *Parser) attach(st *parseState, name string) {
	if st.current < 0 {
		for _, n := range st.pending {
			if n == name {
				return
			}
		}
		st.pending = append(st.pending, name)
		return
	}
	joinScene(&st.doc.Scenes[st.current], name)
}

func joinScene(scene *models.Scene, name string) {
	for _, n := range scene.Characters {
		if n == name {
			return
		}
	}
	scene.Characters = append(scene.Characters, name)
}

// InferAttributes 从描述关键词推断性别、年龄段、风格和音色
func (p *Parser) InferAttributes(desc string) models.CharacterAttributes {
	attrs := models.CharacterAttributes{
		Gender:  p.rules.Gender.Match(desc),
		AgeBand: p.rules.AgeBand.Match(desc),
		Style:   p.rules.Style.Match(desc),
	}
	// 音色只有男女两档，非 male 一律用女声；提示词模板的默认则是男性
	voiceGender := rules.GenderFemale
	if attrs.Gender == rules.GenderMale {
		voiceGender = rules.GenderMale
	}
	attrs.VoiceModel = fmt.Sprintf("%s_%s_01", voiceGender, attrs.AgeBand)
	return attrs
}
