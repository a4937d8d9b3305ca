package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"ScriptToVideo-server/models"
)

// Workspace 一次运行独占的目录：TempDir 存放中间资源和帧，运行结束时删除；OutputDir 保存交付物
type Workspace struct {
	RunID     string
	TempDir   string
	OutputDir string

	once       sync.Once
	cleanupErr error
}

func NewWorkspace(tempRoot, outputRoot, runID string) (*Workspace, error) {
	ws := &Workspace{
		RunID:     runID,
		TempDir:   filepath.Join(tempRoot, runID),
		OutputDir: filepath.Join(outputRoot, runID),
	}
	for _, dir := range []string{ws.FramesDir(), ws.AssetDir(models.AssetCharacter), ws.AssetDir(models.AssetScene), ws.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace dir %s: %w", dir, err)
		}
	}
	return ws, nil
}

func (w *Workspace) FramesDir() string {
	return filepath.Join(w.TempDir, "frames")
}

func (w *Workspace) AssetDir(kind models.AssetKind) string {
	return filepath.Join(w.TempDir, string(kind)+"s")
}

// AssetPath 资源路径只由类型和主体 id 决定，重复解析同一 id 覆盖同一文件
func (w *Workspace) AssetPath(kind models.AssetKind, subjectID string) string {
	return filepath.Join(w.AssetDir(kind), SafeName(subjectID)+".png")
}

func (w *Workspace) MetadataDir() string {
	return filepath.Join(w.OutputDir, "metadata")
}

// Cleanup 删除临时目录，只执行一次
func (w *Workspace) Cleanup() error {
	w.once.Do(func() {
		w.cleanupErr = os.RemoveAll(w.TempDir)
	})
	return w.cleanupErr
}

// SafeName 把任意 id 转为文件名；发生替换时追加哈希避免冲突
func SafeName(id string) string {
	var b strings.Builder
	changed := false
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
			changed = true
		}
	}
	s := b.String()
	if s == "" || changed {
		sum := sha256.Sum256([]byte(id))
		s += "_" + hex.EncodeToString(sum[:4])
	}
	return s
}
