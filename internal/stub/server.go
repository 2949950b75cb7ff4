package stub

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pixelperm/pixelperm/internal/domain"
)

// stage is one step of the simulated pipeline. Progress milestones and
// descriptions mirror the real backend's processing stages.
type stage struct {
	progress float64
	message  string
}

var pipeline = []stage{
	{10, "Starting loading and preprocessing images..."},
	{30, "Starting extracting pixel data..."},
	{50, "Starting creating pixel assignment..."},
	{60, "Starting generating final reconstructed image..."},
	{80, "Starting creating animation..."},
	{90, "Starting creating diagnostic visualization..."},
}

// Valid artifact names for the result endpoint.
var artifacts = map[string]string{
	"animation":   "pixel_animation",
	"final_image": "final_reconstructed_image.png",
	"diagnostic":  "diagnostic.png",
	"mapping":     "mapping.json",
}

// task tracks one simulated job.
type task struct {
	id         string
	status     string
	progress   float64
	logs       []string
	errMessage string
	startedAt  time.Time
	elapsed    float64
	format     domain.Format
}

// Server is the in-memory backend. The zero value is not usable; use New.
type Server struct {
	mu        sync.Mutex
	tasks     map[string]*task
	counter   int
	stepDelay time.Duration
	failAt    float64
	failMsg   string
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStepDelay sets how long the simulated pipeline spends on each stage.
func WithStepDelay(d time.Duration) Option {
	return func(s *Server) { s.stepDelay = d }
}

// WithFailure makes every task fail with msg once its progress reaches the
// given milestone. Used to exercise the error status path.
func WithFailure(atProgress float64, msg string) Option {
	return func(s *Server) {
		s.failAt = atProgress
		s.failMsg = msg
	}
}

// New creates a stub backend.
func New(logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		tasks:     make(map[string]*task),
		stepDelay: 50 * time.Millisecond,
		failAt:    -1,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the chi router implementing the backend contract.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/upload", s.handleUpload)
	r.Get("/status/{taskID}", s.handleStatus)
	r.Delete("/cleanup/{taskID}", s.handleCleanup)
	r.Get("/health", s.handleHealth)
	r.Get("/result/{taskID}/{artifact}", s.handleResult)
	return r
}

// ActiveTasks reports how many tasks the stub currently tracks.
func (s *Server) ActiveTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
		return
	}

	for _, role := range []string{domain.ImageSource, domain.ImageTarget} {
		if _, _, err := r.FormFile(role); err != nil {
			writeJSON(w, http.StatusBadRequest,
				map[string]string{"error": "Source and target files are required"})
			return
		}
	}

	format := domain.Format(r.FormValue("format"))
	if format == "" {
		format = domain.FormatMP4
	}

	s.mu.Lock()
	s.counter++
	id := fmt.Sprintf("task_%d_%s", s.counter, randomHex(4))
	tk := &task{
		id:        id,
		status:    "processing",
		logs:      []string{"Starting pixel permutation process..."},
		startedAt: time.Now(),
		format:    format,
	}
	s.tasks[id] = tk
	s.mu.Unlock()

	s.logger.Info("stub accepted upload", "task_id", id)
	go s.run(id)

	writeJSON(w, http.StatusOK, map[string]string{
		"task_id": id,
		"message": "Processing started",
	})
}

// run walks the task through the pipeline stages.
func (s *Server) run(id string) {
	for _, st := range pipeline {
		time.Sleep(s.stepDelay)

		s.mu.Lock()
		tk, ok := s.tasks[id]
		if !ok {
			// Cleaned up mid-run; nothing left to advance.
			s.mu.Unlock()
			return
		}

		tk.progress = st.progress
		tk.elapsed = time.Since(tk.startedAt).Seconds()
		tk.logs = append(tk.logs, st.message)

		if s.failAt >= 0 && st.progress >= s.failAt {
			tk.status = "error"
			tk.errMessage = s.failMsg
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}

	time.Sleep(s.stepDelay)

	s.mu.Lock()
	if tk, ok := s.tasks[id]; ok {
		tk.status = "completed"
		tk.progress = 100
		tk.elapsed = time.Since(tk.startedAt).Seconds()
		tk.logs = append(tk.logs, "Process completed")
	}
	s.mu.Unlock()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")

	s.mu.Lock()
	tk, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "unknown"})
		return
	}

	body := map[string]any{
		"status":       tk.status,
		"time_elapsed": tk.elapsed,
		"logs":         append([]string(nil), tk.logs...),
	}
	switch tk.status {
	case "processing":
		body["progress"] = tk.progress
	case "error":
		body["error"] = tk.errMessage
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")

	s.mu.Lock()
	_, existed := s.tasks[id]
	delete(s.tasks, id)
	s.mu.Unlock()

	s.logger.Info("stub cleaned up task", "task_id", id, "existed", existed)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cleaned up successfully"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"timestamp":    float64(time.Now().Unix()),
		"active_tasks": s.ActiveTasks(),
	})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	artifact := chi.URLParam(r, "artifact")

	name, ok := artifacts[artifact]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid file type"})
		return
	}

	s.mu.Lock()
	tk, exists := s.tasks[id]
	completed := exists && tk.status == "completed"
	format := domain.FormatMP4
	if exists {
		format = tk.format
	}
	s.mu.Unlock()

	if !completed {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Result not found"})
		return
	}

	if artifact == "animation" {
		name = fmt.Sprintf("%s.%s", name, format)
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	// Placeholder bytes stand in for the real artifact.
	_, _ = fmt.Fprintf(w, "stub artifact %s for %s", artifact, id)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "00000000"[:n*2]
	}
	return hex.EncodeToString(b)
}
