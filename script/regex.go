package script

import "regexp"

var (
	// 场景：公园 / 场景: 公园
	SceneRegex = regexp.MustCompile(`^场景\s*[：:]\s*(.*)$`)
	// 角色：小明（男，30，西装）
	CharacterRegex = regexp.MustCompile(`^角色\s*[：:]\s*(.*)$`)
	// 名字后的括号组，全角或半角
	ParenRegex = regexp.MustCompile(`^(.*?)\s*[（(](.*)[）)]\s*$`)
	// 说话人：内容
	DialogueRegex = regexp.MustCompile(`^([^：:]+)[：:]\s*(.*)$`)
	// 字段分隔符
	FieldSepRegex = regexp.MustCompile(`[，,]`)
)
