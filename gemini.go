package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const detectPrompt = `List the distinct objects clearly visible in this photo.

Reply with a JSON array, most prominent object first, at most 10 entries:
[
  {"label": "<common English noun, lowercase>", "confidence": <number between 0 and 1>},
  ...
]

Rules:
- Use everyday names ("flower", "chair", "cup"), not brands.
- "confidence" is how sure you are the object is present.
- If nothing is recognizable, reply with [].
- Reply ONLY with the JSON, no comment or markdown.`

var detectionSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"label":      {Type: genai.TypeString},
			"confidence": {Type: genai.TypeNumber},
		},
		Required: []string{"label", "confidence"},
	},
}

// Detect sends the image to Gemini and returns the labels it reports.
func (g *GeminiDetector) Detect(ctx context.Context, img *CapturedImage) ([]Detection, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, ErrNoCapture
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName,
		[]*genai.Content{{
			Role: "user",
			Parts: []*genai.Part{
				{Text: detectPrompt},
				{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}},
			},
		}},
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr(float32(0.1)),
			TopP:             genai.Ptr(float32(1)),
			ResponseMIMEType: "application/json",
			ResponseSchema:   detectionSchema,
		},
	)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	return parseGeminiDetections(resp.Text()), nil
}

// parseGeminiDetections decodes the model's JSON. An empty or malformed
// reply counts as nothing detected.
func parseGeminiDetections(text string) []Detection {
	if text == "" {
		return []Detection{}
	}
	var dets []Detection
	if err := json.Unmarshal([]byte(text), &dets); err != nil {
		log.Warn().Err(err).Str("raw", text).Msg("malformed gemini detections, treating as empty")
		return []Detection{}
	}
	return normalizeDetections(dets)
}

func classifyGeminiError(err error) error {
	var (
		apiErr    genai.APIError
		apiErrPtr *genai.APIError
	)
	found := errors.As(err, &apiErr)
	if !found && errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		apiErr, found = *apiErrPtr, true
	}
	if found {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AuthError{Status: apiErr.Code, Message: apiErr.Message}
		default:
			return &ServiceError{Status: apiErr.Code, Body: apiErr.Message}
		}
	}
	return &NetworkError{Err: fmt.Errorf("gemini generate: %w", err)}
}
