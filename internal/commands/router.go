package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/strefethen/harmony-go/internal/apperrors"
	"github.com/strefethen/harmony-go/internal/audit"
	"github.com/strefethen/harmony-go/internal/metrics"
	"github.com/strefethen/harmony-go/internal/playback"
)

// HelpText lists the commands a user can send.
const HelpText = `Commands:
/play <song name>
/next <song name>
/pause
/resume
/skip
/current
/queue
/clear
/loop
/volume <0-100>`

// Banner is printed when a surface comes up.
const Banner = "🤖 Harmony\n📦 v0.1.0\n❓ /help"

// Controller is the part of the playback controller the router drives.
type Controller interface {
	Play(ctx context.Context, args []string, playNext bool, send playback.Sender) error
	Skip(ctx context.Context, send playback.Sender) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SetVolume(ctx context.Context, raw string) (int, error)
	CurrentStatus() string
	QueueStatus() string
	ClearQueue() int
	ToggleLoop() bool
}

var known = map[string]bool{
	"help": true, "play": true, "next": true, "pause": true, "resume": true, "skip": true,
	"current": true, "queue": true, "clear": true, "loop": true, "volume": true,
}

// Command is one parsed user command.
type Command struct {
	Name string   `json:"command"`
	Args []string `json:"args"`
}

// Parse splits a line into a command. A leading "/" is optional. Blank lines yield false.
func Parse(line string) (Command, bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return Command{}, false
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if name == "" {
		return Command{}, false
	}
	return Command{Name: name, Args: fields[1:]}, true
}

// Options configures a Router.
type Options struct {
	Audit   *audit.Service
	Metrics *metrics.Metrics
	Logger  *logrus.Logger
}

// Router maps commands to controller calls and renders every outcome through send.
type Router struct {
	controller Controller
	audit      *audit.Service
	metrics    *metrics.Metrics
	logger     *logrus.Logger
}

// NewRouter creates a Router.
func NewRouter(controller Controller, opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Router{
		controller: controller,
		audit:      opts.Audit,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
}

// Route runs cmd. Failures are rendered through send and also returned so that
// surfaces with a status channel (HTTP) can map them.
func (r *Router) Route(ctx context.Context, cmd Command, send playback.Sender) error {
	if send == nil {
		send = func(string) {}
	}
	cmd.Name = strings.ToLower(strings.TrimPrefix(cmd.Name, "/"))

	label := cmd.Name
	if !known[label] {
		label = "unknown"
	}

	err := r.dispatch(ctx, cmd, send)
	if err == nil {
		r.metrics.Command(label, "ok")
		return nil
	}

	appErr := apperrors.EnsureAppError(err)
	r.metrics.Command(label, string(appErr.Kind))
	send(Render(appErr))

	log := r.logger.WithError(err).WithFields(logrus.Fields{"command": cmd.Name, "kind": appErr.Kind})
	switch appErr.Kind {
	case apperrors.KindUserInput:
		log.Debug("command rejected")
	case apperrors.KindUpstream, apperrors.KindTransient:
		log.Warn("command failed")
	default:
		log.Error("command failed")
		r.audit.Record(audit.EventCommandFailed, audit.LevelError, err.Error(), audit.EventCorrelation{},
			map[string]any{"command": cmd.Name, "args": cmd.Args, "kind": string(appErr.Kind)})
	}
	return appErr
}

func (r *Router) dispatch(ctx context.Context, cmd Command, send playback.Sender) error {
	switch cmd.Name {
	case "help":
		send(HelpText)
	case "play":
		return r.controller.Play(ctx, cmd.Args, false, send)
	case "next":
		return r.controller.Play(ctx, cmd.Args, true, send)
	case "pause":
		if err := r.controller.Pause(ctx); err != nil {
			return err
		}
		send("⏸️ Paused")
	case "resume":
		if err := r.controller.Resume(ctx); err != nil {
			return err
		}
		send("▶️ Resumed")
	case "skip":
		return r.controller.Skip(ctx, send)
	case "current":
		send(r.controller.CurrentStatus())
	case "queue":
		send(r.controller.QueueStatus())
	case "clear":
		r.controller.ClearQueue()
		send("🗑️ Cleared")
	case "loop":
		if r.controller.ToggleLoop() {
			send("🔁 Looping")
		} else {
			send("➡ No longer looping")
		}
	case "volume":
		raw := ""
		if len(cmd.Args) > 0 {
			raw = cmd.Args[0]
		}
		volume, err := r.controller.SetVolume(ctx, raw)
		if err != nil {
			return err
		}
		send(fmt.Sprintf("🔊 Volume set to %d", volume))
	default:
		return apperrors.NewUnknownCommandError(cmd.Name)
	}
	return nil
}

// Render turns an error into the reply line for its kind. Defects and unclassified
// errors never expose their text.
func Render(err error) string {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return "🛑 Internal error"
	}
	switch appErr.Kind {
	case apperrors.KindUserInput:
		return "🛑 " + appErr.Message
	case apperrors.KindUpstream:
		return "🛑 Error: " + appErr.Message
	case apperrors.KindTransient:
		return "⚠️ Try again: " + appErr.Message
	default:
		return "🛑 Internal error"
	}
}
