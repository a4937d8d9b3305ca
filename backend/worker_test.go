package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeWorker 模拟生成 Worker：第一次轮询返回 processing，之后返回 finalStatus
func fakeWorker(t *testing.T, finalStatus string, resource []byte) *httptest.Server {
	t.Helper()
	var polls int32
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-1"})
	})
	mux.HandleFunc("/v1/jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			return
		}
		status := "processing"
		if atomic.AddInt32(&polls, 1) > 1 {
			status = finalStatus
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "job-1",
			"status": status,
			"error":  "gpu exploded",
			"result": map[string]string{"resource_url": srv.URL + "/files/out"},
		})
	})
	mux.HandleFunc("/files/out", func(w http.ResponseWriter, r *http.Request) {
		w.Write(resource)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(endpoint string) *WorkerClient {
	return NewWorkerClient(endpoint, 60000, 5*time.Millisecond, 5*time.Second)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestWorkerGenerateImage(t *testing.T) {
	srv := fakeWorker(t, "finished", pngBytes(t, 8, 4))
	img, err := newTestClient(srv.URL).GenerateImage(context.Background(), "portrait", 8, 4)
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestWorkerNonImageResourceFails(t *testing.T) {
	srv := fakeWorker(t, "finished", []byte(`{"not":"an image"}`))
	if _, err := newTestClient(srv.URL).GenerateImage(context.Background(), "p", 8, 8); err == nil {
		t.Fatal("expected error for non-image resource")
	}
}

func TestWorkerReportedFailure(t *testing.T) {
	srv := fakeWorker(t, "failed", nil)
	_, err := newTestClient(srv.URL).Synthesize(context.Background(), "你好", nil)
	if err == nil || !strings.Contains(err.Error(), "gpu exploded") {
		t.Fatalf("expected worker failure, got %v", err)
	}
}

func TestWorkerSynthesize(t *testing.T) {
	srv := fakeWorker(t, "success", []byte("RIFF....WAVE"))
	wave, err := newTestClient(srv.URL).Synthesize(context.Background(), "你好", []float32{0.1})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if wave.Format != "wav" || len(wave.Data) == 0 {
		t.Errorf("unexpected waveform %+v", wave)
	}
}

func TestWorkerPollCanceled(t *testing.T) {
	srv := fakeWorker(t, "processing", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := newTestClient(srv.URL).GenerateImage(ctx, "p", 8, 8); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestGenerateClipWithoutExtractor(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")
	if _, err := c.GenerateClip(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)), 4, 8); err == nil {
		t.Fatal("expected error without extractor")
	}
}
