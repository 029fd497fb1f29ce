package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultDetectTimeout = 30 * time.Second

var (
	ErrNoCapture           = errors.New("no image captured")
	ErrDetectInFlight      = errors.New("detection already in progress")
	ErrStaleAttempt        = errors.New("attempt is no longer current")
	ErrDetectorUnavailable = errors.New("no detector configured")
)

// GameOptions configures one game session.
type GameOptions struct {
	Board         Board
	PointsPerCell int
	Resolver      ResolverConfig
	// KeepCaptureOnError keeps the captured image after a detection
	// failure so the player can resend it without recapturing.
	KeepCaptureOnError bool
	DetectTimeout      time.Duration
	// TickInterval drives the session clock; zero disables the ticker.
	TickInterval time.Duration
}

// GameDeps are the collaborators a game talks to.
type GameDeps struct {
	Camera   Camera
	Encoder  Encoder
	Detector Detector
	Metrics  *Metrics
	Publish  func(Event)
}

// Event is pushed to players whenever the game changes.
type Event struct {
	Type    string   `json:"type"`
	Cell    int      `json:"cell,omitempty"`
	Points  int      `json:"points"`
	Elapsed int      `json:"elapsed_seconds"`
	Screen  Screen   `json:"screen"`
	Outcome *Outcome `json:"outcome,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// AttemptResult is what one detect call did to the game.
type AttemptResult struct {
	Cell       int         `json:"cell"`
	Outcome    Outcome     `json:"outcome"`
	Detections []Detection `json:"detections"`
	Completed  bool        `json:"completed"`
	Won        bool        `json:"won"`
}

// GameSnapshot is the JSON view of a game.
type GameSnapshot struct {
	ID          string         `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	Screen      Screen         `json:"screen"`
	HasCapture  bool           `json:"has_capture"`
	Detecting   bool           `json:"detecting"`
	CameraOpen  bool           `json:"camera_open"`
	CameraError string         `json:"camera_error,omitempty"`
	LastResult  *AttemptResult `json:"last_result,omitempty"`
	PuzzleState
}

// Game sequences activation, capture, detection and navigation for one
// player. Every puzzle mutation happens under mu; only the detector call
// runs unlocked.
type Game struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	puzzle   *Puzzle
	nav      Navigator
	resolver Resolver
	opts     GameOptions
	deps     GameDeps

	handle       VideoHandle
	capture      *CapturedImage
	attempt      uint64 // bumped whenever the active attempt changes identity
	cancelDetect context.CancelFunc
	last         *AttemptResult
	cameraErr    string

	stop     chan struct{}
	stopOnce sync.Once
}

// NewGame builds a game and starts its clock.
func NewGame(id string, opts GameOptions, deps GameDeps) (*Game, error) {
	if opts.PointsPerCell == 0 {
		opts.PointsPerCell = defaultPointsPerCell
	}
	if opts.DetectTimeout <= 0 {
		opts.DetectTimeout = defaultDetectTimeout
	}
	if deps.Camera == nil {
		deps.Camera = NewFeedCamera()
	}
	if deps.Encoder == nil {
		deps.Encoder = NewJPEGEncoder(defaultCaptureMaxDim, defaultCaptureQuality)
	}

	p, err := NewPuzzle(opts.Board, opts.PointsPerCell)
	if err != nil {
		return nil, fmt.Errorf("new puzzle: %w", err)
	}

	g := &Game{
		ID:        id,
		CreatedAt: time.Now(),
		puzzle:    p,
		resolver:  NewResolver(opts.Resolver),
		opts:      opts,
		deps:      deps,
		stop:      make(chan struct{}),
	}
	g.resumeStartActiveLocked(context.Background())
	if opts.TickInterval > 0 {
		go g.runClock(opts.TickInterval)
	}
	return g, nil
}

func (g *Game) runClock(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.Tick()
		}
	}
}

// Close stops the clock, cancels any detection and releases the camera.
func (g *Game) Close() {
	g.stopOnce.Do(func() { close(g.stop) })

	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelInFlightLocked()
	g.attempt++
	g.releaseCameraLocked()
}

// Tick advances the session clock by one second.
func (g *Game) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.puzzle.Tick() {
		g.emitLocked(Event{Type: "tick"})
	}
}

// Activate starts an attempt on a cell and opens the camera. A camera
// failure leaves the capture screen up but inert; it is reported in the
// snapshot rather than as an error.
func (g *Game) Activate(ctx context.Context, cellID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev, wasActive := g.puzzle.ActiveCell()
	if err := g.puzzle.Activate(cellID); err != nil {
		return err
	}
	if !wasActive || prev != cellID {
		g.attempt++
		g.capture = nil
		g.last = nil
	}
	g.nav.Activated()

	log.Debug().Str("game", g.ID).Int("cell", cellID).Msg("cell activated")
	g.emitLocked(Event{Type: "cell_activated", Cell: cellID})

	if g.handle == nil {
		g.acquireCameraLocked(ctx)
	}
	return nil
}

// Capture stores a still of the current frame, replacing any previous one.
// A detection still running on the old still is cancelled and its result
// dropped.
func (g *Game) Capture() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cellID, ok := g.puzzle.ActiveCell()
	if !ok {
		return ErrNotActive
	}
	if g.handle == nil {
		return ErrCameraUnavailable
	}

	img, err := g.deps.Encoder.Encode(g.handle)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	g.supersedeDetectLocked()
	g.capture = img
	g.deps.Metrics.CaptureTaken(len(img.Data))

	log.Debug().Str("game", g.ID).Int("cell", cellID).Int("bytes", len(img.Data)).Msg("frame captured")
	g.emitLocked(Event{Type: "captured", Cell: cellID})
	return nil
}

// Detect sends the captured image to the detector, resolves the result
// against the active cell and applies it. Only one detection may be in
// flight; a result that arrives after the attempt was abandoned or
// replaced is dropped with ErrStaleAttempt.
func (g *Game) Detect(ctx context.Context) (*AttemptResult, error) {
	g.mu.Lock()
	if g.deps.Detector == nil {
		g.mu.Unlock()
		return nil, ErrDetectorUnavailable
	}
	cellID, ok := g.puzzle.ActiveCell()
	if !ok {
		g.mu.Unlock()
		return nil, ErrNotActive
	}
	if g.cancelDetect != nil {
		g.mu.Unlock()
		return nil, ErrDetectInFlight
	}
	if g.capture == nil {
		g.mu.Unlock()
		return nil, ErrNoCapture
	}

	token := g.attempt
	img := g.capture
	cell, _ := g.puzzle.Cell(cellID)
	dctx, cancel := context.WithTimeout(ctx, g.opts.DetectTimeout)
	g.cancelDetect = cancel
	g.emitLocked(Event{Type: "detecting", Cell: cellID})
	g.mu.Unlock()

	start := time.Now()
	dets, err := g.deps.Detector.Detect(dctx, img)
	cancel()
	g.deps.Metrics.ObserveDetect(time.Since(start))

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.attempt != token {
		g.deps.Metrics.DetectOutcome("stale")
		log.Debug().Str("game", g.ID).Int("cell", cellID).Msg("dropping stale detection result")
		return nil, ErrStaleAttempt
	}
	g.cancelDetect = nil

	if err != nil {
		kind := detectErrorKind(err)
		g.deps.Metrics.DetectOutcome(kind)
		if !g.opts.KeepCaptureOnError {
			g.capture = nil
		}
		log.Warn().Err(err).Str("game", g.ID).Int("cell", cellID).Str("kind", kind).Msg("detection failed")
		g.emitLocked(Event{Type: "detect_error", Cell: cellID, Error: err.Error()})
		return nil, err
	}

	dets = normalizeDetections(dets)
	outcome := g.resolver.Resolve(cell.Concept, dets)
	res := &AttemptResult{Cell: cellID, Outcome: outcome, Detections: rankDetections(dets)}
	g.last = res

	if !outcome.Matched {
		g.deps.Metrics.DetectOutcome("no_match")
		g.capture = nil
		g.nav.NoMatch()
		g.emitLocked(Event{Type: "no_match", Cell: cellID, Outcome: &outcome})
		g.releaseCameraLocked()
		g.acquireCameraLocked(context.WithoutCancel(ctx))
		return res, nil
	}

	g.deps.Metrics.DetectOutcome("match")
	won, err := g.puzzle.Complete(cellID)
	if err != nil {
		return nil, fmt.Errorf("complete cell %d: %w", cellID, err)
	}
	res.Completed = true
	res.Won = won
	g.deps.Metrics.CellCompleted()

	g.attempt++
	g.capture = nil
	g.releaseCameraLocked()
	g.nav.Matched()

	log.Info().Str("game", g.ID).Int("cell", cellID).Str("label", outcome.Detection.Label).
		Float64("confidence", outcome.Detection.Confidence).Int("points", g.puzzle.Points()).Msg("cell completed")
	g.emitLocked(Event{Type: "cell_completed", Cell: cellID, Outcome: &outcome})

	if won {
		g.nav.Won()
		g.deps.Metrics.Won()
		log.Info().Str("game", g.ID).Int("elapsed", g.puzzle.Elapsed()).Msg("puzzle won")
		g.emitLocked(Event{Type: "win"})
	}
	return res, nil
}

// Retry drops the captured image and reopens the camera, cancelling any
// detection still running on it.
func (g *Game) Retry(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cellID, ok := g.puzzle.ActiveCell()
	if !ok {
		return ErrNotActive
	}
	g.supersedeDetectLocked()
	g.capture = nil
	g.releaseCameraLocked()
	g.acquireCameraLocked(ctx)
	g.emitLocked(Event{Type: "retry", Cell: cellID})
	return nil
}

// Home abandons the active cell, if any, and returns to the grid.
// A detection still in flight is cancelled and its result discarded.
func (g *Game) Home() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cancelInFlightLocked()
	g.releaseCameraLocked()
	g.capture = nil

	if cellID, ok := g.puzzle.ActiveCell(); ok {
		if err := g.puzzle.Abandon(cellID); err == nil {
			g.attempt++
			log.Debug().Str("game", g.ID).Int("cell", cellID).Msg("cell abandoned")
			g.nav.Home()
			g.emitLocked(Event{Type: "abandoned", Cell: cellID})
			return
		}
	}
	g.nav.Home()
	g.emitLocked(Event{Type: "screen"})
}

// Start resets the game to its initial board.
func (g *Game) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cancelInFlightLocked()
	g.releaseCameraLocked()
	g.capture = nil
	g.last = nil
	g.cameraErr = ""
	g.attempt++
	g.puzzle.Reset()
	g.nav.Reset()

	log.Debug().Str("game", g.ID).Msg("game reset")
	g.emitLocked(Event{Type: "reset"})
	g.resumeStartActiveLocked(context.Background())
}

// resumeStartActiveLocked puts a board that opens with an active cell on
// the capture screen with the camera open.
func (g *Game) resumeStartActiveLocked(ctx context.Context) {
	if _, ok := g.puzzle.ActiveCell(); !ok {
		return
	}
	g.nav.Activated()
	if g.handle == nil {
		g.acquireCameraLocked(ctx)
	}
}

// SetCameraAvailable records the device's camera permission state. When
// access comes back during an attempt the camera is reopened.
func (g *Game) SetCameraAvailable(ctx context.Context, ok bool, reason string) error {
	fc, isFeed := g.deps.Camera.(*FeedCamera)
	if !isFeed {
		return errors.New("camera does not accept device reports")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	fc.SetAvailable(ok, reason)
	if !ok {
		g.handle = nil
		g.cameraErr = ErrCameraUnavailable.Error()
		if reason != "" {
			g.cameraErr += ": " + reason
		}
		return nil
	}
	if _, active := g.puzzle.ActiveCell(); active && g.handle == nil {
		g.acquireCameraLocked(ctx)
	}
	return nil
}

// PushFrame feeds a live frame from the player's device.
func (g *Game) PushFrame(img image.Image) error {
	fc, ok := g.deps.Camera.(*FeedCamera)
	if !ok {
		return errors.New("camera does not accept pushed frames")
	}
	return fc.PushFrame(img)
}

// Snapshot returns a consistent copy of the game.
func (g *Game) Snapshot() GameSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GameSnapshot{
		ID:          g.ID,
		CreatedAt:   g.CreatedAt,
		Screen:      g.nav.Screen(),
		HasCapture:  g.capture != nil,
		Detecting:   g.cancelDetect != nil,
		CameraOpen:  g.handle != nil,
		CameraError: g.cameraErr,
		LastResult:  g.last,
		PuzzleState: g.puzzle.State(),
	}
}

func (g *Game) acquireCameraLocked(ctx context.Context) {
	h, err := g.deps.Camera.Acquire(ctx)
	if err != nil {
		g.handle = nil
		g.cameraErr = err.Error()
		cellID, _ := g.puzzle.ActiveCell()
		log.Warn().Err(err).Str("game", g.ID).Msg("camera acquire failed")
		g.emitLocked(Event{Type: "camera_error", Cell: cellID, Error: err.Error()})
		return
	}
	g.handle = h
	g.cameraErr = ""
}

func (g *Game) releaseCameraLocked() {
	if g.handle != nil {
		g.deps.Camera.Release(g.handle)
		g.handle = nil
	}
}

func (g *Game) cancelInFlightLocked() {
	if g.cancelDetect != nil {
		g.cancelDetect()
		g.cancelDetect = nil
	}
}

// supersedeDetectLocked cancels an in-flight detection and invalidates its
// token so its result cannot touch the newer capture.
func (g *Game) supersedeDetectLocked() {
	if g.cancelDetect == nil {
		return
	}
	g.cancelInFlightLocked()
	g.attempt++
}

func (g *Game) emitLocked(e Event) {
	if g.deps.Publish == nil {
		return
	}
	e.Points = g.puzzle.Points()
	e.Elapsed = g.puzzle.Elapsed()
	e.Screen = g.nav.Screen()
	g.deps.Publish(e)
}

func detectErrorKind(err error) string {
	var (
		netErr  *NetworkError
		authErr *AuthError
		svcErr  *ServiceError
	)
	switch {
	case errors.As(err, &authErr):
		return "auth_error"
	case errors.As(err, &svcErr):
		return "service_error"
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "network_error"
	default:
		return "error"
	}
}
