package service

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"ScriptToVideo-server/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// MinIOPublisher 上传最终产物并返回预签名 URL
type MinIOPublisher struct {
	Client *minio.Client
	Bucket string
	Expiry time.Duration
}

func NewMinIOPublisher(cfg config.MinIO) (*MinIOPublisher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("MinIO 初始化失败: %w", err)
	}
	logrus.Infof("MinIO 客户端已创建: %s", cfg.Endpoint)
	return &MinIOPublisher{Client: client, Bucket: cfg.Bucket, Expiry: 72 * time.Hour}, nil
}

func (p *MinIOPublisher) ensureBucket(ctx context.Context) error {
	exists, err := p.Client.BucketExists(ctx, p.Bucket)
	if err != nil {
		return fmt.Errorf("检查 Bucket 失败: %w", err)
	}
	if exists {
		return nil
	}
	if err := p.Client.MakeBucket(ctx, p.Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("创建 Bucket 失败: %w", err)
	}
	logrus.Infof("Bucket '%s' 已创建", p.Bucket)
	return nil
}

func (p *MinIOPublisher) Publish(ctx context.Context, localPath, objectName string) (string, error) {
	if err := p.ensureBucket(ctx); err != nil {
		return "", err
	}
	_, err := p.Client.FPutObject(ctx, p.Bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: ContentType(objectName),
	})
	if err != nil {
		return "", fmt.Errorf("上传 MinIO 失败: %w", err)
	}

	presigned, err := p.Client.PresignedGetObject(ctx, p.Bucket, objectName, p.Expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("生成签名 URL 失败: %w", err)
	}
	logrus.Infof("文件已上传: %s", objectName)
	return presigned.String(), nil
}

// ContentType 按扩展名推断
func ContentType(name string) string {
	switch filepath.Ext(name) {
	case ".png":
		return "image/png"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}
