package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrNoFrame           = errors.New("no frame received yet")
)

// VideoHandle is a live feed acquired from a Camera.
type VideoHandle interface {
	// Frame returns the most recent frame of the feed.
	Frame() (image.Image, error)
}

// Camera hands out live feeds. Only one handle is valid at a time:
// acquiring a new one invalidates the previous.
type Camera interface {
	Acquire(ctx context.Context) (VideoHandle, error)
	// Release is idempotent and accepts a nil or stale handle.
	Release(h VideoHandle)
}

// FeedCamera is a Camera whose frames are pushed in by the player's
// device (the browser streams stills to the server).
type FeedCamera struct {
	mu        sync.Mutex
	available bool
	reason    string
	current   *feed
}

// NewFeedCamera returns a camera that is assumed available until the
// device reports otherwise.
func NewFeedCamera() *FeedCamera {
	return &FeedCamera{available: true}
}

type feed struct {
	mu     sync.Mutex
	frame  image.Image
	closed bool
}

func (f *feed) Frame() (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrCameraUnavailable
	}
	if f.frame == nil {
		return nil, ErrNoFrame
	}
	return f.frame, nil
}

func (f *feed) close() {
	f.mu.Lock()
	f.closed = true
	f.frame = nil
	f.mu.Unlock()
}

// SetAvailable records whether the device granted camera access.
// Marking the camera unavailable closes the open feed.
func (c *FeedCamera) SetAvailable(ok bool, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = ok
	c.reason = reason
	if !ok && c.current != nil {
		c.current.close()
		c.current = nil
	}
}

func (c *FeedCamera) Acquire(ctx context.Context) (VideoHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		if c.reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrCameraUnavailable, c.reason)
		}
		return nil, ErrCameraUnavailable
	}
	if c.current != nil {
		c.current.close()
	}
	c.current = &feed{}
	return c.current, nil
}

func (c *FeedCamera) Release(h VideoHandle) {
	f, ok := h.(*feed)
	if !ok || f == nil {
		return
	}
	c.mu.Lock()
	if c.current == f {
		c.current = nil
	}
	c.mu.Unlock()
	f.close()
}

// PushFrame replaces the latest frame of the open feed.
func (c *FeedCamera) PushFrame(img image.Image) error {
	c.mu.Lock()
	f := c.current
	c.mu.Unlock()
	if f == nil {
		return ErrCameraUnavailable
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrCameraUnavailable
	}
	f.frame = img
	return nil
}

// Open reports whether a feed is currently acquired.
func (c *FeedCamera) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}
