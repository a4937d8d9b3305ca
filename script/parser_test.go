package script

import (
	"testing"

	"ScriptToVideo-server/rules"
)

const sampleScript = `浪漫晚餐

场景：高档餐厅，烛光晚餐
角色：小明（男，30岁，穿着西装）
角色：小红（女，25岁，穿着红色连衣裙）

小明：今天的晚餐真是太棒了！
小红：是啊，我很开心能和你一起度过这个夜晚。

场景：公园
小明：我有点担心明天的面试。
`

func TestParseNoMarkers(t *testing.T) {
	p := NewParser(nil)
	inputs := []string{"", "   \n\n", "只是一段没有任何结构的文字", "第一行\n第二行"}
	for _, in := range inputs {
		doc := p.Parse(in)
		if doc.Title != DefaultTitle {
			t.Errorf("Parse(%q).Title = %q, want %q", in, doc.Title, DefaultTitle)
		}
		if len(doc.Characters) != 0 || len(doc.Scenes) != 0 || len(doc.Dialogues) != 0 {
			t.Errorf("Parse(%q) should have empty lists, got %+v", in, doc)
		}
		if doc.Summary.TotalScenes != 0 || doc.Summary.TotalCharacters != 0 || doc.Summary.TotalDialogues != 0 {
			t.Errorf("Parse(%q) summary = %+v, want zeros", in, doc.Summary)
		}
	}
}

func TestParseCharacterFields(t *testing.T) {
	p := NewParser(nil)
	tests := []struct {
		name       string
		line       string
		wantName   string
		gender     string
		age        string
		appearance string
		desc       string
	}{
		{"三个字段", "角色: 小明（男，30，西装）", "小明", "男", "30", "西装", "小明（男，30，西装）"},
		{"全角冒号", "角色：小明（男，30，西装）", "小明", "男", "30", "西装", "小明（男，30，西装）"},
		{"缺少字段", "角色：老王（男）", "老王", "男", "", "", "老王（男）"},
		{"多余字段忽略", "角色：阿花（女，20，长发，戴眼镜）", "阿花", "女", "20", "长发", "阿花（女，20，长发，戴眼镜）"},
		{"半角括号", "角色：Tom (男, 40, 夹克)", "Tom", "男", "40", "夹克", "Tom (男, 40, 夹克)"},
		{"无括号", "角色：路人", "路人", "", "", "", "路人"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := p.Parse(tt.line)
			if len(doc.Characters) != 1 {
				t.Fatalf("expected 1 character, got %d", len(doc.Characters))
			}
			c := doc.Characters[0]
			if c.Name != tt.wantName || c.Gender != tt.gender || c.Age != tt.age || c.Appearance != tt.appearance {
				t.Errorf("got {%q %q %q %q}, want {%q %q %q %q}",
					c.Name, c.Gender, c.Age, c.Appearance, tt.wantName, tt.gender, tt.age, tt.appearance)
			}
			if c.Description != tt.desc {
				t.Errorf("description = %q, want %q", c.Description, tt.desc)
			}
		})
	}
}

func TestInferAttributes(t *testing.T) {
	p := NewParser(nil)
	tests := []struct {
		desc   string
		gender string
		voice  string
	}{
		{"她的男朋友", rules.GenderMale, "male_middle_01"},
		{"女，20，休闲", rules.GenderFemale, "female_young_01"},
		{"看不出来", rules.GenderUnknown, "female_middle_01"},
		{"老年，优雅", rules.GenderUnknown, "female_elder_01"},
		{"男，70", rules.GenderMale, "male_elder_01"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			attrs := p.InferAttributes(tt.desc)
			if attrs.Gender != tt.gender || attrs.VoiceModel != tt.voice {
				t.Errorf("InferAttributes(%q) = %s/%s, want %s/%s", tt.desc, attrs.Gender, attrs.VoiceModel, tt.gender, tt.voice)
			}
		})
	}
}

func TestParseDuplicateCharacters(t *testing.T) {
	doc := NewParser(nil).Parse("角色：小明（男，30，西装）\n角色：小红（女）\n角色：小明（男，50，夹克）")
	if len(doc.Characters) != 2 {
		t.Fatalf("expected 2 characters, got %d", len(doc.Characters))
	}
	if doc.Characters[0].Name != "小明" || doc.Characters[0].Age != "30" {
		t.Errorf("first occurrence should win, got %+v", doc.Characters[0])
	}
	if doc.Characters[1].Name != "小红" {
		t.Errorf("order not preserved: %+v", doc.Characters)
	}
}

func TestParseSampleScript(t *testing.T) {
	doc := NewParser(nil).Parse(sampleScript)

	if doc.Title != "浪漫晚餐" {
		t.Errorf("Title = %q", doc.Title)
	}
	if len(doc.Scenes) != 2 || doc.Scenes[0].ID != "scene_1" || doc.Scenes[1].ID != "scene_2" {
		t.Fatalf("unexpected scenes: %+v", doc.Scenes)
	}
	if doc.Scenes[0].Description != "高档餐厅，烛光晚餐" {
		t.Errorf("scene description = %q", doc.Scenes[0].Description)
	}
	if len(doc.Dialogues) != 3 {
		t.Fatalf("expected 3 dialogues, got %d", len(doc.Dialogues))
	}
	wantEmotion := []string{rules.EmotionNeutral, "高兴", "紧张"}
	for i, want := range wantEmotion {
		if doc.Dialogues[i].Emotion != want {
			t.Errorf("dialogue %d emotion = %q, want %q", i, doc.Dialogues[i].Emotion, want)
		}
	}
	if doc.Dialogues[2].SceneID != "scene_2" {
		t.Errorf("third line should belong to scene_2, got %q", doc.Dialogues[2].SceneID)
	}
	if got := doc.Scenes[0].Characters; len(got) != 2 {
		t.Errorf("scene_1 characters = %v", got)
	}
	if got := doc.Scenes[1].Characters; len(got) != 1 || got[0] != "小明" {
		t.Errorf("scene_2 characters = %v", got)
	}
	xm := doc.Characters[0]
	if xm.Attributes.Gender != rules.GenderMale || xm.Attributes.AgeBand != rules.AgeYoung || xm.Attributes.Style != rules.StyleFormal {
		t.Errorf("小明 attributes = %+v", xm.Attributes)
	}
	if xm.Attributes.VoiceModel != "male_young_01" {
		t.Errorf("voice model = %q", xm.Attributes.VoiceModel)
	}
	if doc.Summary.TotalScenes != 2 || doc.Summary.TotalCharacters != 2 || doc.Summary.TotalDialogues != 3 {
		t.Errorf("summary = %+v", doc.Summary)
	}
}

func TestParseMinimalEndToEndScript(t *testing.T) {
	doc := NewParser(nil).Parse("场景：公园\n角色：小明（男，25，休闲）\n小明：你好。")
	if len(doc.Scenes) != 1 || len(doc.Characters) != 1 || len(doc.Dialogues) != 1 {
		t.Fatalf("got %d scenes, %d characters, %d dialogues", len(doc.Scenes), len(doc.Characters), len(doc.Dialogues))
	}
	if doc.Dialogues[0].Emotion != rules.EmotionNeutral {
		t.Errorf("emotion = %q", doc.Dialogues[0].Emotion)
	}
	if doc.Title != DefaultTitle {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.Scenes[0].Characters[0] != "小明" {
		t.Errorf("character not attached to scene: %v", doc.Scenes[0].Characters)
	}
}

func TestParseDialogueEdgeCases(t *testing.T) {
	doc := NewParser(nil).Parse("场景：街道\n路人甲：   \n陌生人：今天好开心\n:没有说话人")
	if len(doc.Dialogues) != 1 {
		t.Fatalf("expected 1 dialogue, got %+v", doc.Dialogues)
	}
	if doc.Dialogues[0].Speaker != "陌生人" || doc.Dialogues[0].Emotion != "高兴" {
		t.Errorf("got %+v", doc.Dialogues[0])
	}
	if len(doc.Scenes[0].Characters) != 0 {
		t.Errorf("unknown speaker must not join the scene: %v", doc.Scenes[0].Characters)
	}
}

func TestParseCharactersBeforeFirstScene(t *testing.T) {
	doc := NewParser(nil).Parse("角色：小明（男）\n小明：早\n场景：家")
	if doc.Dialogues[0].SceneID != "scene_1" {
		t.Errorf("early dialogue scene = %q", doc.Dialogues[0].SceneID)
	}
	if len(doc.Scenes[0].Characters) != 1 {
		t.Errorf("pending character not attached: %v", doc.Scenes[0].Characters)
	}
}
