package main

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
)

func solidFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	return img
}

func TestFeedCameraAcquireInvalidatesPrevious(t *testing.T) {
	cam := NewFeedCamera()
	ctx := context.Background()

	h1, err := cam.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := h1.Frame(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame, got %v", err)
	}
	if err := cam.PushFrame(solidFrame(4, 4)); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := h1.Frame(); err != nil {
		t.Fatalf("frame: %v", err)
	}

	h2, err := cam.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if _, err := h1.Frame(); !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("old handle should be invalid, got %v", err)
	}
	if _, err := h2.Frame(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("new handle should start empty, got %v", err)
	}
}

func TestFeedCameraReleaseIsIdempotent(t *testing.T) {
	cam := NewFeedCamera()
	cam.Release(nil)

	h, _ := cam.Acquire(context.Background())
	cam.Release(h)
	cam.Release(h)

	if cam.Open() {
		t.Fatal("camera should be closed after release")
	}
	if err := cam.PushFrame(solidFrame(2, 2)); !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable, got %v", err)
	}
}

func TestFeedCameraReleaseStaleHandleKeepsCurrent(t *testing.T) {
	cam := NewFeedCamera()
	old, _ := cam.Acquire(context.Background())
	cur, _ := cam.Acquire(context.Background())

	cam.Release(old)
	if !cam.Open() {
		t.Fatal("releasing a stale handle must not close the current one")
	}
	cam.PushFrame(solidFrame(2, 2))
	if _, err := cur.Frame(); err != nil {
		t.Fatalf("current handle: %v", err)
	}
}

func TestFeedCameraUnavailable(t *testing.T) {
	cam := NewFeedCamera()
	h, _ := cam.Acquire(context.Background())

	cam.SetAvailable(false, "permission denied")
	if _, err := h.Frame(); !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("open feed should close, got %v", err)
	}
	_, err := cam.Acquire(context.Background())
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable, got %v", err)
	}

	cam.SetAvailable(true, "")
	if _, err := cam.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after permission granted: %v", err)
	}
}
