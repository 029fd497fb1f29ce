package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	defaultGCPRegion   = "europe-west1"
	defaultGeminiModel = "gemini-2.5-flash"
)

// GeminiDetector labels photos with a Gemini model served from Vertex AI.
type GeminiDetector struct {
	client    *genai.Client
	modelName string
}

// NewGeminiDetector connects to Vertex AI with Application Default
// Credentials (GOOGLE_APPLICATION_CREDENTIALS or the metadata server).
// Without a project there is nothing to bill the calls to, so it fails with
// an AuthError before any client is built.
func NewGeminiDetector(ctx context.Context, projectID, region, model string) (*GeminiDetector, error) {
	if projectID == "" {
		return nil, &AuthError{Message: "no GCP project configured for Vertex AI"}
	}
	if region == "" {
		region = defaultGCPRegion
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: region,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("vertex ai client for %s/%s: %w", projectID, region, err)
	}

	log.Info().Str("project", projectID).Str("region", region).Str("model", model).Msg("gemini detector ready")
	return &GeminiDetector{client: client, modelName: model}, nil
}

// Close is a no-op; the genai client holds no connections of its own.
func (g *GeminiDetector) Close() error {
	return nil
}
