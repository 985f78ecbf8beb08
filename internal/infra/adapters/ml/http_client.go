package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/adapter"
	"scanguard/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies both ports
var (
	_ adapter.PredictionClient = (*HTTPClient)(nil)
	_ adapter.TrainingClient   = (*HTTPClient)(nil)
)

// HTTPClient talks to the in-house prediction/retraining service over JSON
// HTTP. Predictions use a short timeout; retraining gets its own long one.
type HTTPClient struct {
	base    string
	apiKey  string
	predict *http.Client
	retrain *http.Client
}

func NewHTTPClient(baseURL, apiKey string, predictTimeout, retrainTimeout time.Duration) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, errors.New("ml base url empty")
	}
	if predictTimeout <= 0 {
		predictTimeout = 30 * time.Second
	}
	if retrainTimeout <= 0 {
		retrainTimeout = 10 * time.Minute
	}
	return &HTTPClient{
		base:    baseURL,
		apiKey:  apiKey,
		predict: &http.Client{Timeout: predictTimeout},
		retrain: &http.Client{Timeout: retrainTimeout},
	}, nil
}

func (c *HTTPClient) PredictText(ctx context.Context, text string) (*adapter.Prediction, error) {
	return c.predictJSON(ctx, "/predict/text", map[string]any{"text": text})
}

func (c *HTTPClient) ScanURL(ctx context.Context, url string) (*adapter.Prediction, error) {
	return c.predictJSON(ctx, "/scan/url", map[string]any{"url": url})
}

func (c *HTTPClient) AnalyzeURLDeep(ctx context.Context, url string) (*adapter.Prediction, error) {
	return c.predictJSON(ctx, "/analyze/url/deep", map[string]any{"url": url})
}

func (c *HTTPClient) PredictPhishing(ctx context.Context, text string) (*adapter.Prediction, error) {
	return c.predictJSON(ctx, "/predict/phishing", map[string]any{"text": text})
}

func (c *HTTPClient) PredictVoice(ctx context.Context, audio []byte, filename, mimeType string) (*adapter.Prediction, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, err
	}
	if err := mw.WriteField("mime_type", mimeType); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/predict/voice", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, "/predict/voice")
}

func (c *HTTPClient) Retrain(ctx context.Context, versionID string, samples []model.TrainingSample, hp adapter.Hyperparameters) (*adapter.RetrainResult, error) {
	type labeledSample struct {
		model.TrainingSample
		Class int `json:"class"`
	}
	labeled := make([]labeledSample, 0, len(samples))
	for _, s := range samples {
		labeled = append(labeled, labeledSample{TrainingSample: s, Class: model.LabelPolarity(s.CorrectedLabel)})
	}

	reqBody := struct {
		VersionID       string                  `json:"version_id"`
		Samples         []labeledSample         `json:"samples"`
		Hyperparameters adapter.Hyperparameters `json:"hyperparameters"`
	}{VersionID: versionID, Samples: labeled, Hyperparameters: hp}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/retrain", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	start := time.Now()
	resp, err := c.retrain.Do(req)
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		metrics.ObserveMLCall("/retrain", latency, false)
		return nil, fmt.Errorf("%w: retrain: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		metrics.ObserveMLCall("/retrain", latency, false)
		return nil, fmt.Errorf("%w: retrain http %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}
	metrics.ObserveMLCall("/retrain", latency, true)

	var out adapter.RetrainResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) predictJSON(ctx context.Context, path string, payload any) (*adapter.Prediction, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path)
}

func (c *HTTPClient) do(req *http.Request, path string) (*adapter.Prediction, error) {
	c.auth(req)

	start := time.Now()
	resp, err := c.predict.Do(req)
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		metrics.ObserveMLCall(path, latency, false)
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUpstreamUnavailable, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		metrics.ObserveMLCall(path, latency, false)
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s http %d", domain.ErrUpstreamUnavailable, path, resp.StatusCode)
	}
	metrics.ObserveMLCall(path, latency, true)

	var out adapter.Prediction
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
