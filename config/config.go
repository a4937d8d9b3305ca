package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	// Worker 生成服务（文生图 / TTS / 图生视频）地址，为空表示不启用
	Worker struct {
		Addr                string `yaml:"addr"`
		PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
		JobTimeoutMinutes   int    `yaml:"job_timeout_minutes"`
		RequestsPerMinute   int    `yaml:"requests_per_minute"`
	} `yaml:"worker"`
	MinIO    MinIO    `yaml:"minio"`
	Pipeline Pipeline `yaml:"pipeline"`
	Backends Backends `yaml:"backends"`
	Rules    struct {
		Path string `yaml:"path"`
	} `yaml:"rules"`
	Log Log `yaml:"log"`
}

type MinIO struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type Pipeline struct {
	FPS                  int     `yaml:"fps"`
	Width                int     `yaml:"width"`
	Height               int     `yaml:"height"`
	DefaultSceneDuration float64 `yaml:"default_scene_duration"`
	ThumbnailSize        int     `yaml:"thumbnail_size"`
	CharacterSize        int     `yaml:"character_size"`
	MaxNarrationChars    int     `yaml:"max_narration_chars"`
	TempDir              string  `yaml:"temp_dir"`
	OutputDir            string  `yaml:"output_dir"`
	FontPath             string  `yaml:"font_path"`
	FontSize             float64 `yaml:"font_size"`
	Concurrency          int     `yaml:"concurrency"`
	// FrameSource: composite | diffusion
	FrameSource string `yaml:"frame_source"`
	// Dispatcher: local | queue
	Dispatcher string `yaml:"dispatcher"`
	Sidecar    string `yaml:"sidecar"` // json | db | none
}

// Backends 控制各生成能力是否启用
type Backends struct {
	Image          bool   `yaml:"image"`
	Speech         bool   `yaml:"speech"`
	VideoDiffusion bool   `yaml:"video_diffusion"`
	FFmpegPath     string `yaml:"ffmpeg_path"`
	TTSCommand     string `yaml:"tts_command"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var AppConfig *Config

// Default 返回填充默认值的配置
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Worker.PollIntervalSeconds <= 0 {
		c.Worker.PollIntervalSeconds = 3
	}
	if c.Worker.JobTimeoutMinutes <= 0 {
		c.Worker.JobTimeoutMinutes = 30
	}
	if c.Worker.RequestsPerMinute <= 0 {
		c.Worker.RequestsPerMinute = 30
	}
	p := &c.Pipeline
	if p.FPS <= 0 {
		p.FPS = 24
	}
	if p.Width <= 0 || p.Height <= 0 {
		p.Width, p.Height = 1920, 1080
	}
	if p.DefaultSceneDuration <= 0 {
		p.DefaultSceneDuration = 10.0
	}
	if p.ThumbnailSize <= 0 {
		p.ThumbnailSize = 200
	}
	if p.CharacterSize <= 0 {
		p.CharacterSize = 512
	}
	if p.MaxNarrationChars <= 0 {
		p.MaxNarrationChars = 200
	}
	if p.TempDir == "" {
		p.TempDir = "data/temp"
	}
	if p.OutputDir == "" {
		p.OutputDir = "data/videos"
	}
	if p.FontSize <= 0 {
		p.FontSize = 28
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 4
	}
	if p.FrameSource == "" {
		p.FrameSource = "composite"
	}
	if p.Dispatcher == "" {
		p.Dispatcher = "local"
	}
	if p.Sidecar == "" {
		p.Sidecar = "json"
	}
	if c.Backends.FFmpegPath == "" {
		c.Backends.FFmpegPath = "ffmpeg"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// applyEnv 环境变量覆盖配置文件
func (c *Config) applyEnv() {
	if v := os.Getenv("WORKER_ADDR"); v != "" {
		c.Worker.Addr = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.MySQL.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("FFMPEG_PATH"); v != "" {
		c.Backends.FFmpegPath = v
	}
	if v := os.Getenv("FONT_PATH"); v != "" {
		c.Pipeline.FontPath = v
	}
	if v := os.Getenv("TTS_COMMAND"); v != "" {
		c.Backends.TTSCommand = v
	}
}

// Load 读取 yaml 配置，文件不存在时使用默认值
func Load(path string) (*Config, error) {
	c := &Config{}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(c); err != nil {
			return nil, fmt.Errorf("配置文件解析失败: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("配置文件读取失败: %w", err)
	}
	c.applyEnv()
	c.applyDefaults()
	return c, nil
}

func InitConfig(path string) error {
	c, err := Load(path)
	if err != nil {
		return err
	}
	AppConfig = c
	return nil
}
