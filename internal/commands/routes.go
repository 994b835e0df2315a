package commands

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/strefethen/harmony-go/internal/api"
	"github.com/strefethen/harmony-go/internal/apperrors"
	"github.com/strefethen/harmony-go/internal/playback"
)

// StatusProvider exposes the controller's consistent view.
type StatusProvider interface {
	Status() playback.Status
}

// CommandRequest is the POST /v1/commands body. Either Text or Command is set.
type CommandRequest struct {
	Text    string   `json:"text,omitempty"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// CommandResult is returned for every routed command, with Error set on failure.
type CommandResult struct {
	Object  string                     `json:"object"` // "command_result"
	Command string                     `json:"command"`
	Replies []string                   `json:"replies"`
	Error   *apperrors.StripeErrorBody `json:"error,omitempty"`
}

// QueueResponse is the GET /v1/queue body.
type QueueResponse struct {
	Object string `json:"object"` // "queue"
	playback.Status
}

// RegisterRoutes wires command and queue routes to the router.
func RegisterRoutes(router chi.Router, commandRouter *Router, status StatusProvider, logger *logrus.Logger) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	router.Method(http.MethodPost, "/v1/commands", api.Handler(postCommand(commandRouter, logger)))
	router.Method(http.MethodGet, "/v1/queue", api.Handler(getQueue(status)))
}

// postCommand routes one command and returns everything it replied.
// POST /v1/commands
func postCommand(commandRouter *Router, logger *logrus.Logger) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		var body CommandRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return apperrors.NewValidationError("Request body must be JSON", nil)
		}

		cmd, ok := Command{Name: body.Command, Args: body.Args}, body.Command != ""
		if body.Text != "" {
			cmd, ok = Parse(body.Text)
		}
		if !ok {
			return apperrors.NewValidationError("text or command is required", nil)
		}

		replies := newReplyCollector(logger.WithField("request_id", api.GetRequestID(r)))
		err := commandRouter.Route(r.Context(), cmd, replies.Send)
		lines := replies.Close()

		result := CommandResult{Object: "command_result", Command: cmd.Name, Replies: lines}
		if err != nil {
			appErr := apperrors.EnsureAppError(err)
			errBody := appErr.StripeErrorBody()
			result.Error = &errBody
			return api.WriteAction(w, appErr.StatusCode, result)
		}
		return api.WriteAction(w, http.StatusOK, result)
	}
}

// getQueue returns the current song, the pending songs and the loop flag.
// GET /v1/queue
func getQueue(status StatusProvider) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteResource(w, http.StatusOK, QueueResponse{Object: "queue", Status: status.Status()})
	}
}

// replyCollector gathers replies for one HTTP response. The controller keeps the last
// sender for announcements on later advances; those arrive after Close and are logged.
type replyCollector struct {
	mu     sync.Mutex
	lines  []string
	closed bool
	log    *logrus.Entry
}

func newReplyCollector(log *logrus.Entry) *replyCollector {
	return &replyCollector{lines: []string{}, log: log}
}

func (c *replyCollector) Send(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.log.WithField("reply", text).Info("announcement")
		return
	}
	c.lines = append(c.lines, text)
}

func (c *replyCollector) Close() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return append([]string{}, c.lines...)
}
