package main

import (
	"encoding/json"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const maxFrameSize = 10 << 20 // 10 MB

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// rateLimiter is a simple per-IP token bucket rate limiter.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*bucket
	rate     int           // tokens per interval
	interval time.Duration // refill interval
	done     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens   int
	lastSeen time.Time
}

func newRateLimiter(rate int, interval time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*bucket),
		rate:     rate,
		interval: interval,
		done:     make(chan struct{}),
	}
	go rl.sweep(time.Minute)
	return rl
}

// sweep drops visitors idle for five minutes until stop is called.
func (rl *rateLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, b := range rl.visitors {
				if time.Since(b.lastSeen) > 5*time.Minute {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.visitors[ip]
	if !ok {
		rl.visitors[ip] = &bucket{tokens: rl.rate - 1, lastSeen: time.Now()}
		return true
	}

	// Refill tokens based on elapsed time.
	elapsed := time.Since(b.lastSeen)
	refill := int(elapsed / rl.interval)
	if refill > 0 {
		b.tokens += refill * rl.rate
		if b.tokens > rl.rate {
			b.tokens = rl.rate
		}
		b.lastSeen = time.Now()
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Server is the main HTTP server.
type Server struct {
	mux      *http.ServeMux
	cfg      Config
	store    *Store
	detector Detector
	metrics  *Metrics
	sse      *Broadcaster
	detectRL *rateLimiter
	frameRL  *rateLimiter
}

// NewServer creates a configured HTTP server. detector may be nil, in
// which case detection requests are refused.
func NewServer(cfg Config, store *Store, detector Detector, metrics *Metrics) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		cfg:      cfg,
		store:    store,
		detector: detector,
		metrics:  metrics,
		sse:      NewBroadcaster(),
		detectRL: newRateLimiter(10, time.Minute), // 10 detections/min per IP
		frameRL:  newRateLimiter(30, time.Second), // 30 frames/sec per IP
	}
	s.routes()
	return s
}

// Close stops the rate limiters' background sweeps.
func (s *Server) Close() {
	s.detectRL.stop()
	s.frameRL.stop()
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/games", s.handleCreateGame)
	s.mux.HandleFunc("GET /api/games", s.handleListGames)
	s.mux.HandleFunc("GET /api/games/{id}", s.handleGetGame)
	s.mux.HandleFunc("DELETE /api/games/{id}", s.handleDeleteGame)
	s.mux.HandleFunc("POST /api/games/{id}/start", s.handleStart)
	s.mux.HandleFunc("POST /api/games/{id}/cells/{cell}/activate", s.handleActivate)
	s.mux.HandleFunc("POST /api/games/{id}/camera", s.handleCamera)
	s.mux.HandleFunc("POST /api/games/{id}/frame", s.handleFrame)
	s.mux.HandleFunc("POST /api/games/{id}/capture", s.handleCapture)
	s.mux.HandleFunc("POST /api/games/{id}/detect", s.handleDetect)
	s.mux.HandleFunc("POST /api/games/{id}/retry", s.handleRetry)
	s.mux.HandleFunc("POST /api/games/{id}/home", s.handleHome)
	s.mux.HandleFunc("GET /api/games/{id}/events", s.handleGameEvents)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	s.mux.ServeHTTP(w, r)
}

// newGame builds a game wired to the server's collaborators.
func (s *Server) newGame(b Board) (*Game, error) {
	id := generateID()
	g, err := NewGame(id, s.cfg.GameOptions(b), GameDeps{
		Camera:   NewFeedCamera(),
		Encoder:  NewJPEGEncoder(s.cfg.CaptureMaxDim, s.cfg.CaptureQuality),
		Detector: s.detector,
		Metrics:  s.metrics,
		Publish:  s.sse.Publisher(id),
	})
	if err != nil {
		return nil, err
	}
	return s.store.SaveGame(g), nil
}

// --- Game handlers ---

// POST /api/games — create a game from the default board or a custom one.
func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	board := DefaultBoard()
	if r.ContentLength > 0 {
		var custom Board
		if err := json.NewDecoder(r.Body).Decode(&custom); err != nil {
			jsonError(w, "invalid board", http.StatusBadRequest)
			return
		}
		board = custom
	}

	g, err := s.newGame(board)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Info().Str("game", g.ID).Msg("game created")
	writeJSON(w, http.StatusCreated, g.Snapshot())
}

// GET /api/games — list all games.
func (s *Server) handleListGames(w http.ResponseWriter, _ *http.Request) {
	games := s.store.ListGames()
	out := make([]GameSnapshot, 0, len(games))
	for _, g := range games {
		out = append(out, g.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/games/{id} — current game state.
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	g := s.lookupGame(w, r)
	if g == nil {
		return
	}
	writeJSON(w, http.StatusOK, g.Snapshot())
}

// DELETE /api/games/{id} — drop a game.
func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeleteGame(r.PathValue("id")) {
		jsonError(w, "game not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/games/{id}/start — restart the game.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	g := s.lookupGame(w, r)
	if g == nil {
		return
	}
	g.Start()
	writeJSON(w, http.StatusOK, g.Snapshot())
}

// POST /api/games/{id}/cells/{cell}/activate — open a cell for capture.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	g := s.lookupGame(w, r)
	if g == nil {
		return
	}
	cellID, err := strconv.Atoi(r.PathValue("cell"))
	if err != nil {
		jsonError(w, "invalid cell", http.StatusBadRequest)
		return
	}
	if err := g.Activate(r.Context(), cellID); err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.Snapshot())
}

// POST /api/games/{id}/camera — device reports camera permission.
func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	g := s.lookupGame(w, r)
	if g == nil {
		return
	}
	var req struct {
		Available bool   `json:"available"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := g.SetCameraAvailable(r.Context(), req.Available, req.Reason); err != nil {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, g.Snapshot())
}

// POST /api/games/{id}/frame — push a live frame (multipart field "frame").
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if !s.frameRL.allow(r.RemoteAddr) {
		s.metrics.RateLimited("frame")
		jsonError(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	g := s.lookupGame(w, r)
	if g == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFrameSize)
	if err := r.ParseMultipartForm(maxFrameSize); err != nil {
		jsonError(w, "frame too large (max 10 MB)", http.StatusRequestEntityTooLarge)
		return
	}
	file, header, err := r.FormFile("frame")
	if err != nil {
		jsonError(w, "field 'frame' is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !allowedMIME[header.Header.Get("Content-Type")] {
		jsonError(w, "accepted formats: JPEG or PNG", http.StatusBadRequest)
		return
	}
	img, _, err := image.Decode(file)
	if err != nil {
		jsonError(w, "cannot decode frame", http.StatusBadRequest)
		return
	}

	if err := g.PushFrame(img); err != nil {
		writeGameError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/games/{id}/capture — freeze the current frame.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	g := s.lookupGame(w, r)
	if g == nil {
		return
	}
	if err := g.Capture(); err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.Snapshot())
}

// POST /api/games/{id}/detect — run detection on the captured image.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if !s.detectRL.allow(r.RemoteAddr) {
		s.metrics.RateLimited("detect")
		jsonError(w, "too many requests, try again later", http.StatusTooManyRequests)
		return
	}
	g := s.lookupGame(w, r)
	if g == nil {
		return
	}

	res, err := g.Detect(r.Context())
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*AttemptResult
		Game GameSnapshot `json:"game"`
	}{res, g.Snapshot()})
}

// POST /api/games/{id}/retry — drop the capture and reopen the camera.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	g := s.lookupGame(w, r)
	if g == nil {
		return
	}
	if err := g.Retry(r.Context()); err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.Snapshot())
}

// POST /api/games/{id}/home — back to the grid.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	g := s.lookupGame(w, r)
	if g == nil {
		return
	}
	g.Home()
	writeJSON(w, http.StatusOK, g.Snapshot())
}

// GET /api/games/{id}/events — SSE stream.
func (s *Server) handleGameEvents(w http.ResponseWriter, r *http.Request) {
	g := s.lookupGame(w, r)
	if g == nil {
		return
	}
	s.sse.ServeSSE(w, r, g.ID, func() (string, any) {
		return "game_state", g.Snapshot()
	})
}

// --- Helpers ---

func (s *Server) lookupGame(w http.ResponseWriter, r *http.Request) *Game {
	g := s.store.GetGame(r.PathValue("id"))
	if g == nil {
		jsonError(w, "game not found", http.StatusNotFound)
	}
	return g
}

// writeGameError maps game and detection errors to HTTP statuses.
func writeGameError(w http.ResponseWriter, err error) {
	var (
		netErr  *NetworkError
		authErr *AuthError
		svcErr  *ServiceError
	)
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownCell):
		code = http.StatusNotFound
	case errors.Is(err, ErrAlreadyActive), errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrNotActive), errors.Is(err, ErrNoCapture),
		errors.Is(err, ErrDetectInFlight), errors.Is(err, ErrStaleAttempt),
		errors.Is(err, ErrNoFrame):
		code = http.StatusConflict
	case errors.Is(err, ErrCameraUnavailable), errors.Is(err, ErrDetectorUnavailable):
		code = http.StatusServiceUnavailable
	case errors.As(err, &authErr):
		code = http.StatusUnauthorized
	case errors.As(err, &svcErr), errors.As(err, &netErr):
		code = http.StatusBadGateway
	}
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	jsonError(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
