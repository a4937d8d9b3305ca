package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"ScriptToVideo-server/models"
	"ScriptToVideo-server/render"
)

// Sidecar 资源元数据存储，按实体 id 存取。Load 失败一律视为"元数据未知"
type Sidecar interface {
	Save(ctx context.Context, rec models.AssetRecord) error
	Load(ctx context.Context, id string) (models.AssetRecord, bool)
}

// JSONSidecar 每条记录一个 JSON 文件
type JSONSidecar struct {
	Dir string
}

func (s JSONSidecar) path(id string) string {
	return filepath.Join(s.Dir, SafeName(id)+".json")
}

func (s JSONSidecar) Save(_ context.Context, rec models.AssetRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return render.WriteFile(s.path(rec.ID), data)
}

func (s JSONSidecar) Load(_ context.Context, id string) (models.AssetRecord, bool) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return models.AssetRecord{}, false
	}
	var rec models.AssetRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.AssetRecord{}, false
	}
	return rec, true
}

type NopSidecar struct{}

func (NopSidecar) Save(context.Context, models.AssetRecord) error { return nil }

func (NopSidecar) Load(context.Context, string) (models.AssetRecord, bool) {
	return models.AssetRecord{}, false
}
