package service

import (
	"context"

	"ScriptToVideo-server/models"

	"gorm.io/gorm"
)

// GormSidecar 资源元数据写入 asset 表
type GormSidecar struct {
	DB *gorm.DB
}

func (s GormSidecar) Save(ctx context.Context, rec models.AssetRecord) error {
	return models.SaveAssetRecord(s.DB.WithContext(ctx), &rec)
}

func (s GormSidecar) Load(ctx context.Context, id string) (models.AssetRecord, bool) {
	rec, err := models.GetAssetRecord(s.DB.WithContext(ctx), id)
	if err != nil {
		return models.AssetRecord{}, false
	}
	return *rec, true
}
