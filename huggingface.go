package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

const (
	defaultHFModelURL  = "https://api-inference.huggingface.co/models/facebook/detr-resnet-50"
	defaultHFThreshold = 0.5
	maxHFResponseSize  = 1 << 20
)

// HuggingFaceDetector calls a Hugging Face Inference API object-detection
// or image-classification model.
type HuggingFaceDetector struct {
	url       *url.URL
	token     string
	threshold float64
	client    *http.Client
}

// NewHuggingFaceDetector creates a detector for the given model URL.
// threshold is sent to the model as a confidence floor hint.
func NewHuggingFaceDetector(modelURL, token string, threshold float64, client *http.Client) (*HuggingFaceDetector, error) {
	if modelURL == "" {
		modelURL = defaultHFModelURL
	}
	u, err := url.Parse(modelURL)
	if err != nil {
		return nil, fmt.Errorf("invalid model url: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HuggingFaceDetector{url: u, token: token, threshold: threshold, client: client}, nil
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	Threshold float64 `json:"threshold,omitempty"`
}

type hfDetection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Box   *Box    `json:"box,omitempty"`
}

func (d *HuggingFaceDetector) Detect(ctx context.Context, img *CapturedImage) ([]Detection, error) {
	if d.token == "" {
		return nil, &AuthError{Message: "API token is missing"}
	}
	if img == nil || len(img.Data) == 0 {
		return nil, ErrNoCapture
	}

	body, err := json.Marshal(hfRequest{
		Inputs:     base64.StdEncoding.EncodeToString(img.Data),
		Parameters: hfParameters{Threshold: d.threshold},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+d.token)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("x-wait-for-model", "true")

	response, err := d.client.Do(request)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("send request: %w", err)}
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxHFResponseSize))
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case response.StatusCode == http.StatusUnauthorized, response.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Status: response.StatusCode, Message: string(raw)}
	case response.StatusCode < 200 || response.StatusCode > 299:
		return nil, &ServiceError{Status: response.StatusCode, Body: string(raw)}
	}

	return parseHFDetections(raw), nil
}

// parseHFDetections decodes a model response. Anything that is not a list
// of label/score objects counts as nothing detected.
func parseHFDetections(raw []byte) []Detection {
	var items []hfDetection
	if err := json.Unmarshal(raw, &items); err != nil {
		log.Warn().Err(err).Int("bytes", len(raw)).Msg("malformed detection payload, treating as empty")
		return []Detection{}
	}

	dets := make([]Detection, 0, len(items))
	for _, it := range items {
		dets = append(dets, Detection{Label: it.Label, Confidence: it.Score, Box: it.Box})
	}
	return normalizeDetections(dets)
}
