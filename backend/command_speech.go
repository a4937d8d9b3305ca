package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandSpeech 调用本地 TTS 命令（edge-tts 兼容参数）生成音频
type CommandSpeech struct {
	Command string
	Voice   string
}

func NewCommandSpeech(command, voice string) (*CommandSpeech, error) {
	if command == "" {
		return nil, ErrUnavailable
	}
	if _, err := exec.LookPath(command); err != nil {
		return nil, fmt.Errorf("tts command %q not found: %w", command, ErrUnavailable)
	}
	if voice == "" {
		voice = "zh-CN-XiaoxiaoNeural"
	}
	return &CommandSpeech{Command: command, Voice: voice}, nil
}

// Synthesize 本地命令不支持说话人向量，speakerEmbedding 被忽略
func (c *CommandSpeech) Synthesize(ctx context.Context, text string, speakerEmbedding []float32) (Waveform, error) {
	dir, err := os.MkdirTemp("", "tts-*")
	if err != nil {
		return Waveform{}, err
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "speech.mp3")

	cmd := exec.CommandContext(ctx, c.Command, "--voice", c.Voice, "--text", text, "--write-media", out)
	if msg, err := cmd.CombinedOutput(); err != nil {
		return Waveform{}, fmt.Errorf("tts command: %w: %s", err, strings.TrimSpace(string(msg)))
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return Waveform{}, err
	}
	if len(data) == 0 {
		return Waveform{}, fmt.Errorf("tts command produced empty audio")
	}
	return Waveform{Data: data, Format: "mp3"}, nil
}
