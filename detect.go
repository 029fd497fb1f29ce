package main

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Box is an optional bounding box in image pixels.
type Box struct {
	XMin int `json:"xmin"`
	YMin int `json:"ymin"`
	XMax int `json:"xmax"`
	YMax int `json:"ymax"`
}

// Detection is one label reported by a detection backend.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        *Box    `json:"box,omitempty"`
}

// Detector turns a captured image into a list of detections.
// An empty list is a valid answer and not an error.
type Detector interface {
	Detect(ctx context.Context, img *CapturedImage) ([]Detection, error)
}

// NetworkError is a transport failure talking to the backend.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError means the backend rejected or never received credentials.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return "auth error: " + e.Message
	}
	return fmt.Sprintf("auth error: status %d: %s", e.Status, e.Message)
}

// ServiceError is a backend-side failure with its status and body.
type ServiceError struct {
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error: status %d, body: %s", e.Status, e.Body)
}

// normalizeDetections drops unlabeled entries and clamps confidences into
// [0,1]. The result is never nil.
func normalizeDetections(raw []Detection) []Detection {
	out := make([]Detection, 0, len(raw))
	for _, d := range raw {
		d.Label = strings.TrimSpace(d.Label)
		if d.Label == "" {
			continue
		}
		switch {
		case math.IsNaN(d.Confidence), d.Confidence < 0:
			d.Confidence = 0
		case d.Confidence > 1:
			d.Confidence = 1
		}
		out = append(out, d)
	}
	return out
}
