package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FFmpeg 通过外部 ffmpeg 进程实现编码、音视频合并与拆帧
type FFmpeg struct {
	Binary string
}

// NewFFmpeg 找不到可执行文件时返回 ErrUnavailable
func NewFFmpeg(binary string) (*FFmpeg, error) {
	if binary == "" {
		binary = "ffmpeg"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg %q not found: %w", binary, ErrUnavailable)
	}
	return &FFmpeg{Binary: path}, nil
}

// Encode 以 image2pipe 顺序写入 PNG 帧，编码为 H.264 MP4
func (f *FFmpeg) Encode(ctx context.Context, framePaths []string, fps int, outPath string) error {
	if len(framePaths) == 0 {
		return fmt.Errorf("no frames to encode")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, f.Binary,
		"-y", "-loglevel", "error",
		"-f", "image2pipe", "-vcodec", "png", "-framerate", strconv.Itoa(fps), "-i", "-",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-movflags", "+faststart",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	writeErr := pipeFiles(stdin, framePaths)
	stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encode: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if writeErr != nil {
		return fmt.Errorf("write frames: %w", writeErr)
	}
	return nil
}

func pipeFiles(w io.Writer, paths []string) error {
	for _, p := range paths {
		fh, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, fh)
		fh.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Merge 合并视频与音频；音频不足时补静音，时长以视频为准
func (f *FFmpeg) Merge(ctx context.Context, videoPath, audioPath, outPath string) error {
	cmd := exec.CommandContext(ctx, f.Binary,
		"-y", "-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac", "-b:a", "192k",
		"-af", "apad",
		"-shortest",
		"-movflags", "+faststart",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg merge: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ExtractFrames 按 fps 拆帧为 PNG，返回排序后的路径
func (f *FFmpeg) ExtractFrames(ctx context.Context, clipPath, dir string, fps int) ([]string, error) {
	pattern := filepath.Join(dir, "clip_%05d.png")
	cmd := exec.CommandContext(ctx, f.Binary,
		"-y", "-loglevel", "error",
		"-i", clipPath,
		"-vf", "fps="+strconv.Itoa(fps),
		pattern,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg extract: %w: %s", err, strings.TrimSpace(string(out)))
	}
	paths, err := filepath.Glob(filepath.Join(dir, "clip_*.png"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
