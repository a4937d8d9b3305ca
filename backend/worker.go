package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Worker 任务类型
const (
	JobTypeImage = "generate_shot"
	JobTypeAudio = "generate_audio"
	JobTypeVideo = "generate_video"
)

// JobResult 仅保留最小资源定位信息
type JobResult struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	ResourceURL  string `json:"resource_url"`
}

// FrameExtractor 把视频片段拆成按序排列的帧文件
type FrameExtractor func(ctx context.Context, clipPath, dir string, fps int) ([]string, error)

// WorkerClient 生成 Worker 的 HTTP 客户端：POST /v1/generate 提交，GET /v1/jobs/{id} 轮询，下载 resource_url
type WorkerClient struct {
	Endpoint     string
	PollInterval time.Duration
	JobTimeout   time.Duration
	HTTP         *http.Client
	Extract      FrameExtractor

	limiter *rate.Limiter
	log     *logrus.Entry
}

func NewWorkerClient(endpoint string, requestsPerMinute int, pollInterval, jobTimeout time.Duration) *WorkerClient {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	return &WorkerClient{
		Endpoint:     endpoint,
		PollInterval: pollInterval,
		JobTimeout:   jobTimeout,
		HTTP:         &http.Client{Timeout: 60 * time.Second},
		limiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		log:          logrus.WithField("component", "worker"),
	}
}

// Submit 发送 POST 请求，返回 job_id
func (w *WorkerClient) Submit(ctx context.Context, jobType string, params map[string]interface{}) (string, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return "", err
	}
	reqBody := map[string]interface{}{
		"type":       jobType,
		"parameters": params,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request failed: %w", err)
	}
	fullURL := w.Endpoint + "/v1/generate"
	w.log.Debugf("POST %s type=%s", fullURL, jobType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("worker status code: %d", resp.StatusCode)
	}

	var respData map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("decode response failed: %w", err)
	}
	if id, ok := respData["id"].(string); ok && id != "" {
		return id, nil
	}
	if jobID, ok := respData["job_id"].(string); ok && jobID != "" {
		return jobID, nil
	}
	return "", fmt.Errorf("response missing 'id'")
}

// Poll 轮询直到完成、失败、超时或 ctx 取消
func (w *WorkerClient) Poll(ctx context.Context, jobID string) (*JobResult, error) {
	jobURL := fmt.Sprintf("%s/v1/jobs/%s", w.Endpoint, jobID)
	timeout := time.After(w.JobTimeout)
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			w.cancel(jobID)
			return nil, fmt.Errorf("polling timeout")
		case <-ctx.Done():
			w.cancel(jobID)
			return nil, fmt.Errorf("polling canceled: %w", ctx.Err())
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, jobURL, nil)
			if err != nil {
				return nil, err
			}
			resp, err := w.HTTP.Do(req)
			if err != nil {
				w.log.Debugf("轮询网络错误(重试中): %v", err)
				continue
			}
			var job struct {
				ID     string    `json:"id"`
				Status string    `json:"status"`
				Error  string    `json:"error"`
				Result JobResult `json:"result"`
			}
			err = json.NewDecoder(resp.Body).Decode(&job)
			resp.Body.Close()
			if err != nil {
				w.log.Debugf("解析响应失败: %v", err)
				continue
			}
			switch job.Status {
			case "finished", "success", "completed", "succeeded":
				return &job.Result, nil
			case "failed", "error", "cancelled":
				return nil, fmt.Errorf("worker reported failure: %s", job.Error)
			}
		}
	}
}

// cancel 尽力通知 Worker 取消任务
func (w *WorkerClient) cancel(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, w.Endpoint+"/v1/jobs/"+jobID, nil)
	if err != nil {
		return
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		w.log.Debugf("取消任务 %s 失败: %v", jobID, err)
		return
	}
	resp.Body.Close()
}

func (w *WorkerClient) download(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("resourceUrl is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// run 提交、轮询并下载结果
func (w *WorkerClient) run(ctx context.Context, jobType string, params map[string]interface{}) ([]byte, error) {
	jobID, err := w.Submit(ctx, jobType, params)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", jobType, err)
	}
	result, err := w.Poll(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}
	return w.download(ctx, result.ResourceURL)
}

func (w *WorkerClient) GenerateImage(ctx context.Context, prompt string, width, height int) (image.Image, error) {
	data, err := w.run(ctx, JobTypeImage, map[string]interface{}{
		"prompt":       prompt,
		"image_width":  width,
		"image_height": height,
	})
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("worker returned non-image resource: %w", err)
	}
	return img, nil
}

func (w *WorkerClient) Synthesize(ctx context.Context, text string, speakerEmbedding []float32) (Waveform, error) {
	params := map[string]interface{}{
		"text":   text,
		"format": "wav",
	}
	if len(speakerEmbedding) > 0 {
		params["speaker_embedding"] = speakerEmbedding
	}
	data, err := w.run(ctx, JobTypeAudio, params)
	if err != nil {
		return Waveform{}, err
	}
	if len(data) == 0 {
		return Waveform{}, fmt.Errorf("worker returned empty audio")
	}
	return Waveform{Data: data, Format: "wav"}, nil
}

// GenerateClip 上传源图生成视频片段，再拆帧解码
func (w *WorkerClient) GenerateClip(ctx context.Context, source image.Image, frameCount, fps int) ([]image.Image, error) {
	if w.Extract == nil {
		return nil, fmt.Errorf("no frame extractor: %w", ErrUnavailable)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, source); err != nil {
		return nil, fmt.Errorf("encode source: %w", err)
	}
	data, err := w.run(ctx, JobTypeVideo, map[string]interface{}{
		"image_base64": base64.StdEncoding.EncodeToString(buf.Bytes()),
		"num_frames":   frameCount,
		"fps":          fps,
	})
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "clip-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	clipPath := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(clipPath, data, 0o644); err != nil {
		return nil, err
	}
	paths, err := w.Extract(ctx, clipPath, dir, fps)
	if err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}
	frames := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decode frame %s: %w", p, err)
		}
		frames = append(frames, img)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("clip has no frames")
	}
	return frames, nil
}
