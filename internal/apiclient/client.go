package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pixelperm/pixelperm/internal/domain"
)

// Wire status values reported by the status endpoint.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// StatusResponse is the decoded body of GET /status/{task_id}.
type StatusResponse struct {
	Status      string   `json:"status"`
	Progress    float64  `json:"progress"`
	TimeElapsed *float64 `json:"time_elapsed,omitempty"`
	Logs        []string `json:"logs,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// uploadResponse is the decoded body of POST /upload.
type uploadResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// healthResponse is the decoded body of GET /health.
type healthResponse struct {
	Status      string  `json:"status"`
	Timestamp   float64 `json:"timestamp,omitempty"`
	ActiveTasks int     `json:"active_tasks,omitempty"`
}

// Client talks to one backend instance. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client for the backend at baseURL. timeout bounds each
// individual request; zero disables the bound.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Upload submits both images and the string-encoded parameters as a
// multipart request and returns the server-assigned task id.
func (c *Client) Upload(
	ctx context.Context,
	source, target domain.ImagePayload,
	params domain.ParameterSet,
) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for _, img := range []domain.ImagePayload{source, target} {
		part, err := createImagePart(writer, img)
		if err != nil {
			return "", &domain.TransportError{Op: "upload", Err: err}
		}
		if _, err := part.Write(img.Data); err != nil {
			return "", &domain.TransportError{Op: "upload", Err: err}
		}
	}

	for field, value := range params.FormValues() {
		if err := writer.WriteField(field, value); err != nil {
			return "", &domain.TransportError{Op: "upload", Err: err}
		}
	}

	if err := writer.Close(); err != nil {
		return "", &domain.TransportError{Op: "upload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return "", &domain.TransportError{Op: "upload", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.tagRequest(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &domain.TransportError{Op: "upload", Err: err}
	}
	defer closeBody(resp, c.logger)

	var decoded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &domain.TransportError{
			Op:  "upload",
			Err: fmt.Errorf("server returned %d with unreadable body: %w", resp.StatusCode, err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := decoded.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &domain.TransportError{
			Op:  "upload",
			Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, msg),
		}
	}

	if decoded.TaskID == "" {
		if decoded.Error != "" {
			return "", &domain.TransportError{
				Op:  "upload",
				Err: fmt.Errorf("server accepted upload but reported: %s", decoded.Error),
			}
		}
		return "", &domain.TransportError{
			Op:  "upload",
			Err: fmt.Errorf("server accepted upload but returned no task id"),
		}
	}

	c.logger.Info("upload accepted", "task_id", decoded.TaskID)
	return decoded.TaskID, nil
}

// Status fetches the current state of the given task.
func (c *Client) Status(ctx context.Context, taskID string) (StatusResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+"/status/"+taskID, nil)
	if err != nil {
		return StatusResponse{}, &domain.TransportError{Op: "status", Err: err}
	}
	c.tagRequest(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return StatusResponse{}, &domain.TransportError{Op: "status", Err: err}
	}
	defer closeBody(resp, c.logger)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusResponse{}, &domain.TransportError{
			Op:  "status",
			Err: fmt.Errorf("server returned %d", resp.StatusCode),
		}
	}

	var decoded StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return StatusResponse{}, &domain.TransportError{Op: "status", Err: err}
	}

	switch decoded.Status {
	case StatusProcessing, StatusCompleted, StatusError:
		return decoded, nil
	default:
		return StatusResponse{}, &domain.TransportError{
			Op:  "status",
			Err: fmt.Errorf("server reported unknown status %q", decoded.Status),
		}
	}
}

// Cleanup asks the server to release resources held for the task. Callers
// treat any outcome, including the returned error, as success for local
// state purposes; the error exists only for logging.
func (c *Client) Cleanup(ctx context.Context, taskID string) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodDelete, c.baseURL+"/cleanup/"+taskID, nil)
	if err != nil {
		return &domain.TransportError{Op: "cleanup", Err: err}
	}
	c.tagRequest(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.TransportError{Op: "cleanup", Err: err}
	}
	defer closeBody(resp, c.logger)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.TransportError{
			Op:  "cleanup",
			Err: fmt.Errorf("server returned %d", resp.StatusCode),
		}
	}
	return nil
}

// Health reports whether the backend is reachable and declares itself
// healthy. It never mutates any state.
func (c *Client) Health(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, &domain.TransportError{Op: "health", Err: err}
	}
	c.tagRequest(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, &domain.TransportError{Op: "health", Err: err}
	}
	defer closeBody(resp, c.logger)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, nil
	}

	var decoded healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, &domain.TransportError{Op: "health", Err: err}
	}
	return decoded.Status == "healthy", nil
}

// tagRequest attaches a correlation id so client and server logs can be
// matched up.
func (c *Client) tagRequest(req *http.Request) {
	req.Header.Set("X-Request-ID", uuid.NewString())
}

// createImagePart adds a file part carrying the image's sniffed MIME type
// instead of multipart's default application/octet-stream.
func createImagePart(w *multipart.Writer, img domain.ImagePayload) (io.Writer, error) {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, img.Name, img.Name+extensionFor(img.MIME)))
	header.Set("Content-Type", img.MIME)
	return w.CreatePart(header)
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	default:
		return ".jpg"
	}
}

func closeBody(resp *http.Response, logger *slog.Logger) {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Debug("failed to drain response body", "error", err)
	}
	if err := resp.Body.Close(); err != nil {
		logger.Debug("failed to close response body", "error", err)
	}
}
