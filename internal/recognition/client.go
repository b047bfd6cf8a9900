// Package recognition talks to the external recognition backend: per-frame
// worker recognition and embedding extraction for enrollment.
package recognition

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/your-org/safety/internal/config"
	"github.com/your-org/safety/internal/models"
	"github.com/your-org/safety/internal/observability"
	"github.com/your-org/safety/pkg/dto"
)

const maxReplyBytes = 4 << 20

// Client is safe for concurrent use by many relay sessions.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	recognizePath string
	vectorizePath string
	vectorDim     int
}

func New(cfg config.RecognitionConfig) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		slog.Warn("recognition backend TLS verification disabled", "base_url", cfg.BaseURL)
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return NewWithHTTPClient(cfg, &http.Client{Transport: transport, Timeout: cfg.Timeout})
}

// NewWithHTTPClient uses the given client as is; tests point it at an httptest server.
func NewWithHTTPClient(cfg config.RecognitionConfig, httpClient *http.Client) *Client {
	return &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		recognizePath: cfg.RecognizePath,
		vectorizePath: cfg.VectorizePath,
		vectorDim:     cfg.VectorDim,
	}
}

type recognizeRequest struct {
	ImageBase64 string `json:"image_base64"`
}

type recognizeReply struct {
	Status  string                `json:"status"`
	Message string                `json:"message"`
	Worker  *dto.RecognizedWorker `json:"worker"`
	PPE     *dto.PPEStatus        `json:"ppe"`
}

type vectorizeReply struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Vector  []float32 `json:"vector"`
	Error   string    `json:"error"`
}

// RecognizeFrame submits one frame. Backend-reported FAILURE and ERROR come
// back as results; only transport problems and malformed replies are errors.
func (c *Client) RecognizeFrame(ctx context.Context, image []byte) (models.RecognitionResult, error) {
	start := time.Now()
	defer func() {
		observability.BackendDuration.WithLabelValues("recognize").Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(recognizeRequest{ImageBase64: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return models.RecognitionResult{}, fmt.Errorf("encode recognize request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.recognizePath, bytes.NewReader(body))
	if err != nil {
		return models.RecognitionResult{}, &CommunicationError{Op: "recognize", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.RecognitionResult{}, &CommunicationError{Op: "recognize", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return models.RecognitionResult{}, &CommunicationError{Op: "recognize", Err: fmt.Errorf("read reply: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.RecognitionResult{}, &CommunicationError{Op: "recognize", Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(raw))}
	}

	var reply recognizeReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return models.RecognitionResult{}, &CommunicationError{Op: "recognize", Err: fmt.Errorf("decode reply: %w", err)}
	}
	status := models.RecognitionStatus(reply.Status)
	if !status.Valid() {
		return models.RecognitionResult{}, &CommunicationError{Op: "recognize", Err: fmt.Errorf("reply has invalid status %q", reply.Status)}
	}

	result := models.RecognitionResult{
		Status:    status,
		Message:   reply.Message,
		PPE:       reply.PPE.ToModel(),
		Timestamp: time.Now(),
	}
	if status == models.RecognitionSuccess {
		result.Worker = reply.Worker.ToModel()
		if result.Worker == nil {
			result.Status = models.RecognitionFailure
			result.Message = "recognition succeeded but the reply carried no worker"
		}
	}
	return result, nil
}

// ExtractEmbedding uploads an enrollment image and returns its embedding.
func (c *Client) ExtractEmbedding(ctx context.Context, image []byte, fileName string) ([]float32, error) {
	start := time.Now()
	defer func() {
		observability.BackendDuration.WithLabelValues("vectorize").Observe(time.Since(start).Seconds())
	}()

	if len(image) == 0 {
		return nil, &ExtractionError{Message: "empty image"}
	}
	if fileName == "" {
		fileName = "image.jpg"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="image"; filename=%q`, fileName)},
		"Content-Type":        {"application/octet-stream"},
	})
	if err != nil {
		return nil, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("write multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.vectorizePath, &buf)
	if err != nil {
		return nil, &CommunicationError{Op: "vectorize", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &CommunicationError{Op: "vectorize", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, &CommunicationError{Op: "vectorize", Err: fmt.Errorf("read reply: %w", err)}
	}

	var reply vectorizeReply
	decodeErr := json.Unmarshal(raw, &reply)

	switch {
	case resp.StatusCode >= 500:
		return nil, &CommunicationError{Op: "vectorize", Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(raw))}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		// 4xx: the backend rejected this image.
		msg := reply.Error
		if msg == "" {
			msg = reply.Message
		}
		if decodeErr != nil || msg == "" {
			msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, snippet(raw))
		}
		return nil, &ExtractionError{Message: msg}
	case decodeErr != nil:
		return nil, &CommunicationError{Op: "vectorize", Err: fmt.Errorf("decode reply: %w", decodeErr)}
	}

	if reply.Error != "" {
		return nil, &ExtractionError{Message: reply.Error}
	}
	if reply.Status != "" && reply.Status != string(models.RecognitionSuccess) {
		msg := reply.Message
		if msg == "" {
			msg = fmt.Sprintf("backend status %s", reply.Status)
		}
		return nil, &ExtractionError{Message: msg}
	}
	if len(reply.Vector) == 0 {
		return nil, &ExtractionError{Message: "backend returned an empty vector"}
	}
	if c.vectorDim > 0 && len(reply.Vector) != c.vectorDim {
		return nil, &ExtractionError{Message: fmt.Sprintf("vector has %d dimensions, want %d", len(reply.Vector), c.vectorDim)}
	}
	return reply.Vector, nil
}

// IsCommunication reports whether err is a backend communication failure.
func IsCommunication(err error) bool {
	var ce *CommunicationError
	return errors.As(err, &ce)
}

// IsExtraction reports whether err is an extraction refusal.
func IsExtraction(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
