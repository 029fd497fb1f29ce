package main

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

const (
	defaultCaptureMaxDim  = 1280
	defaultCaptureQuality = 85
)

// CapturedImage is a still taken from the live feed.
type CapturedImage struct {
	Data     []byte
	MIMEType string
}

// Encoder turns the current frame of a feed into a still image.
type Encoder interface {
	Encode(h VideoHandle) (*CapturedImage, error)
}

// JPEGEncoder encodes frames as JPEG, downscaling so neither side
// exceeds MaxDim. Aspect ratio is preserved.
type JPEGEncoder struct {
	MaxDim  int
	Quality int
}

func NewJPEGEncoder(maxDim, quality int) *JPEGEncoder {
	if quality <= 0 || quality > 100 {
		quality = defaultCaptureQuality
	}
	return &JPEGEncoder{MaxDim: maxDim, Quality: quality}
}

func (e *JPEGEncoder) Encode(h VideoHandle) (*CapturedImage, error) {
	if h == nil {
		return nil, ErrCameraUnavailable
	}
	frame, err := h.Frame()
	if err != nil {
		return nil, err
	}

	img := scaleToFit(frame, e.MaxDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return &CapturedImage{Data: buf.Bytes(), MIMEType: "image/jpeg"}, nil
}

// scaleToFit shrinks src so its longest side is at most maxDim.
// Images already within bounds, or maxDim <= 0, are returned unchanged.
func scaleToFit(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return src
	}

	var dw, dh int
	if w >= h {
		dw = maxDim
		dh = max(1, h*maxDim/w)
	} else {
		dh = maxDim
		dw = max(1, w*maxDim/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
