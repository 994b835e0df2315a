package playback

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/strefethen/harmony-go/internal/apperrors"
	"github.com/strefethen/harmony-go/internal/audit"
	"github.com/strefethen/harmony-go/internal/media"
	"github.com/strefethen/harmony-go/internal/metrics"
	"github.com/strefethen/harmony-go/internal/player"
	"github.com/strefethen/harmony-go/internal/queue"
)

const (
	DefaultResolveTimeout = 15 * time.Second
	DefaultDeliverTimeout = 5 * time.Second

	// statusLimit caps how many upcoming songs QueueStatus lists.
	statusLimit = 5
	mailboxSize = 16
)

// Sender delivers one reply line to whoever issued a command.
type Sender func(text string)

// Resolver turns command arguments into validated media.
type Resolver interface {
	DirectRef(text string) (media.Ref, bool)
	ResolveQuery(ctx context.Context, text string) (media.Ref, error)
	Describe(ctx context.Context, ref media.Ref) (media.Metadata, error)
}

// Fetcher materializes media into registered temp files.
type Fetcher interface {
	Materialize(ctx context.Context, ref media.Ref) (string, error)
	Release(path string) error
}

// Player is the detached player front-end.
type Player interface {
	Deliver(ctx context.Context, d player.Delivery) error
	ClearDelivery()
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SetVolume(ctx context.Context, volume int) error
}

// Options configures a Controller.
type Options struct {
	ResolveTimeout time.Duration // Optional: defaults to DefaultResolveTimeout
	DeliverTimeout time.Duration // Optional: defaults to DefaultDeliverTimeout
	Audit          *audit.Service
	Metrics        *metrics.Metrics
	Logger         *logrus.Logger
}

type requestKind int

const (
	requestEnqueue requestKind = iota
	requestSkip
	requestEnded
)

type request struct {
	kind       requestKind
	song       media.Song
	playNext   bool
	songID     string
	playbackID string
	send       Sender
	reply      chan error
}

// nowPlaying is the delivered song and the file it holds a reference to.
type nowPlaying struct {
	song       media.Song
	path       string
	playbackID string
}

// Controller owns the queue and drives every transition.
//
// Transitions run on the goroutine started by Run, one request at a time. Status
// reads, clear, loop and enqueue behind a current song only take the queue lock.
type Controller struct {
	queue          *queue.Queue
	resolver       Resolver
	fetcher        Fetcher
	player         Player
	audit          *audit.Service
	metrics        *metrics.Metrics
	logger         *logrus.Logger
	resolveTimeout time.Duration
	deliverTimeout time.Duration

	mailbox  chan request
	quit     chan struct{}
	quitOnce sync.Once
	stopped  chan struct{}
	started  atomic.Bool

	resolving atomic.Int32

	mu       sync.RWMutex
	state    State
	playing  *nowPlaying
	lastSend Sender
}

// NewController creates a Controller. Call Run to start processing transitions.
func NewController(q *queue.Queue, resolver Resolver, fetcher Fetcher, p Player, opts Options) *Controller {
	if opts.ResolveTimeout == 0 {
		opts.ResolveTimeout = DefaultResolveTimeout
	}
	if opts.DeliverTimeout == 0 {
		opts.DeliverTimeout = DefaultDeliverTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Controller{
		queue:          q,
		resolver:       resolver,
		fetcher:        fetcher,
		player:         p,
		audit:          opts.Audit,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		resolveTimeout: opts.ResolveTimeout,
		deliverTimeout: opts.DeliverTimeout,
		mailbox:        make(chan request, mailboxSize),
		quit:           make(chan struct{}),
		stopped:        make(chan struct{}),
		state:          StateIdle,
	}
}

// Run processes transition requests until ctx is cancelled or Shutdown is called.
// On exit the file of the current song is released.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("controller already running")
	}
	defer close(c.stopped)
	defer c.releasePlaying()

	c.logger.Info("playback controller started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.quit:
			return nil
		case req := <-c.mailbox:
			err := c.handle(ctx, req)
			if req.reply != nil {
				req.reply <- err
			}
		}
	}
}

// Shutdown stops Run and waits for it to release the current file.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.quitOnce.Do(func() { close(c.quit) })
	if !c.started.Load() {
		c.releasePlaying()
		return nil
	}
	select {
	case <-c.stopped:
		c.logger.Info("playback controller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Play resolves args and queues the result. When nothing is current, playback starts
// and Play returns once the song has been delivered (or the queue ran dry).
func (c *Controller) Play(ctx context.Context, args []string, playNext bool, send Sender) error {
	send = orNoop(send)
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return apperrors.NewEmptyQueryError()
	}

	c.resolving.Add(1)
	defer c.resolving.Add(-1)

	rctx, cancel := context.WithTimeout(ctx, c.resolveTimeout)
	defer cancel()

	ref, ok := c.resolver.DirectRef(args[0])
	if !ok {
		query := strings.Join(args, " ")
		send(fmt.Sprintf("⏳ Searching youtube for %s...", query))
		var err error
		ref, err = c.resolver.ResolveQuery(rctx, query)
		if err != nil {
			return err
		}
	}

	send("⏳ Fetching song data...")
	meta, err := c.resolver.Describe(rctx, ref)
	if err != nil {
		return err
	}
	song := media.NewSong(meta)

	c.audit.Record(audit.EventSongQueued, audit.LevelInfo, "Queued "+song.DisplayName,
		audit.EventCorrelation{SongID: &song.ID}, map[string]any{"media_id": ref.ID, "play_next": playNext})

	if c.queue.AddSongIfCurrent(song, playNext) {
		c.setLastSender(send)
		send(fmt.Sprintf("✅ Added %s to the queue", song.DisplayName))
		return nil
	}

	return c.submit(ctx, request{kind: requestEnqueue, song: song, playNext: playNext, send: send})
}

// Skip finishes the current song, ignoring looping.
func (c *Controller) Skip(ctx context.Context, send Sender) error {
	current := c.queue.Current()
	if current == nil {
		return apperrors.NewNothingPlayingError("Nothing to skip")
	}
	return c.submit(ctx, request{kind: requestSkip, songID: current.ID, send: orNoop(send)})
}

// Ended is the player's notification that playbackID finished. Stale ids are ignored.
func (c *Controller) Ended(playbackID string) {
	select {
	case c.mailbox <- request{kind: requestEnded, playbackID: playbackID}:
	case <-c.quit:
	case <-c.stopped:
	}
}

// Pause pauses the player.
func (c *Controller) Pause(ctx context.Context) error {
	return c.playerCall("pause", c.player.Pause(ctx))
}

// Resume resumes the player.
func (c *Controller) Resume(ctx context.Context) error {
	return c.playerCall("resume", c.player.Resume(ctx))
}

// SetVolume parses raw as a percentage and forwards it to the player.
func (c *Controller) SetVolume(ctx context.Context, raw string) (int, error) {
	volume, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || volume < 0 || volume > 100 {
		return 0, apperrors.NewInvalidVolumeError(raw)
	}
	if err := c.playerCall("setVolume", c.player.SetVolume(ctx, volume)); err != nil {
		return 0, err
	}
	return volume, nil
}

// CurrentStatus describes the current song.
func (c *Controller) CurrentStatus() string {
	current := c.queue.Current()
	if current == nil {
		return "⏹️ Nothing is playing"
	}
	return "🎶 Now playing " + current.DisplayName
}

// QueueStatus lists the first upcoming songs and how many are pending in total.
func (c *Controller) QueueStatus() string {
	snap := c.queue.Snapshot()
	total := len(snap.Pending)
	if total == 0 {
		return "📭 The queue is empty"
	}

	noun := "songs"
	if total == 1 {
		noun = "song"
	}
	lines := []string{fmt.Sprintf("📜 Up next (%d %s):", total, noun)}
	for i, song := range snap.Pending {
		if i == statusLimit {
			break
		}
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, song.DisplayName))
	}
	if total > statusLimit {
		lines = append(lines, fmt.Sprintf("…and %d more", total-statusLimit))
	}
	return strings.Join(lines, "\n")
}

// ClearQueue removes every pending song and returns how many were removed.
func (c *Controller) ClearQueue() int {
	removed := c.queue.Clear()
	c.audit.Record(audit.EventQueueCleared, audit.LevelInfo, fmt.Sprintf("Cleared %d songs", removed),
		audit.EventCorrelation{}, map[string]any{"removed": removed})
	return removed
}

// ToggleLoop flips looping and returns the new value.
func (c *Controller) ToggleLoop() bool {
	return c.queue.ToggleLooping()
}

// State reports what the controller is doing.
func (c *Controller) State() State {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	if state == StateIdle && c.resolving.Load() > 0 {
		return StateResolving
	}
	return state
}

// Status is a consistent view for the HTTP surface.
type Status struct {
	State      State        `json:"state"`
	PlaybackID string       `json:"playback_id,omitempty"`
	Current    *media.Song  `json:"current"`
	Pending    []media.Song `json:"pending"`
	Looping    bool         `json:"looping"`
}

// Status returns the queue snapshot together with the controller state.
func (c *Controller) Status() Status {
	snap := c.queue.Snapshot()
	status := Status{
		State:   c.State(),
		Current: snap.Current,
		Pending: snap.Pending,
		Looping: snap.Looping,
	}
	c.mu.RLock()
	if c.playing != nil {
		status.PlaybackID = c.playing.playbackID
	}
	c.mu.RUnlock()
	return status
}

func (c *Controller) submit(ctx context.Context, req request) error {
	req.reply = make(chan error, 1)

	select {
	case <-c.quit:
		return apperrors.NewShuttingDownError()
	default:
	}

	select {
	case c.mailbox <- req:
	case <-ctx.Done():
		return apperrors.NewTimeoutError("Queueing the request", ctx.Err())
	case <-c.quit:
		return apperrors.NewShuttingDownError()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		// The request still runs; only the caller stops waiting.
		return apperrors.NewTimeoutError("Waiting for playback", ctx.Err())
	case <-c.stopped:
		return apperrors.NewShuttingDownError()
	}
}

func (c *Controller) handle(ctx context.Context, req request) error {
	switch req.kind {
	case requestEnqueue:
		c.setLastSender(req.send)
		t, started := c.queue.Start(req.song, req.playNext)
		if !started {
			req.send(fmt.Sprintf("✅ Added %s to the queue", req.song.DisplayName))
			return nil
		}
		c.advance(ctx, t, metrics.TriggerStart, req.send)
		return nil

	case requestSkip:
		c.setLastSender(req.send)
		current := c.queue.Current()
		if current == nil || current.ID != req.songID {
			c.logger.WithField("song_id", req.songID).Debug("skip target already finished")
			return nil
		}
		c.audit.Record(audit.EventSongSkipped, audit.LevelInfo, "Skipped "+current.DisplayName,
			audit.EventCorrelation{SongID: &current.ID}, nil)
		c.advance(ctx, c.queue.SkipCurrent(), metrics.TriggerSkip, req.send)
		return nil

	case requestEnded:
		c.mu.RLock()
		playing := c.playing
		c.mu.RUnlock()
		if playing == nil || playing.playbackID != req.playbackID {
			c.logger.WithField("playback_id", req.playbackID).Debug("ignoring stale ended")
			return nil
		}
		c.audit.Record(audit.EventSongEnded, audit.LevelInfo, "Finished "+playing.song.DisplayName,
			audit.EventCorrelation{SongID: &playing.song.ID, PlaybackID: &playing.playbackID}, nil)
		c.advance(ctx, c.queue.FinishCurrentAndAdvance(), metrics.TriggerEnded, c.getLastSender())
		return nil
	}
	return fmt.Errorf("unknown request kind %d", req.kind)
}

// advance carries out one transition. A failed fetch drops that song and moves on to the next.
func (c *Controller) advance(ctx context.Context, t queue.Transition, trigger string, send Sender) {
	c.metrics.Advance(trigger)
	c.setState(StateAdvancing)

	for {
		if t.Cleanup != nil {
			c.release(*t.Cleanup)
		}

		if t.Play == nil {
			c.player.ClearDelivery()
			c.setState(StateIdle)
			c.audit.Record(audit.EventQueueFinished, audit.LevelInfo, "Queue over", audit.EventCorrelation{}, nil)
			send("⏹️ Queue over")
			return
		}
		song := *t.Play

		c.mu.RLock()
		playing := c.playing
		c.mu.RUnlock()
		if t.Replay() && playing != nil && playing.song.ID == song.ID {
			c.deliver(ctx, song, playing.path, send)
			return
		}

		send("⏳ Fetching " + song.DisplayName)
		c.setState(StateFetching)

		started := time.Now()
		path, err := c.fetcher.Materialize(ctx, song.Ref)
		c.metrics.ObserveFetch(time.Since(started).Seconds())
		if err != nil && path == "" {
			if ctx.Err() != nil {
				// Run is stopping; pending songs stay queued.
				c.logger.WithField("song", song.DisplayName).Info("fetch interrupted by shutdown")
				return
			}
			c.reportFetchFailure(song, err, send)
			c.queue.DropCurrent(song.ID)
			t = c.queue.FinishCurrentAndAdvance()
			c.setState(StateAdvancing)
			continue
		}
		if err != nil {
			c.recordDefect(err, &song)
		}

		c.deliver(ctx, song, path, send)
		return
	}
}

func (c *Controller) deliver(ctx context.Context, song media.Song, path string, send Sender) {
	playbackID := uuid.NewString()

	c.mu.Lock()
	c.playing = &nowPlaying{song: song, path: path, playbackID: playbackID}
	c.state = StatePlaying
	c.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, c.deliverTimeout)
	defer cancel()

	log := c.logger.WithFields(logrus.Fields{"song": song.DisplayName, "playback_id": playbackID})
	if err := c.player.Deliver(dctx, player.Delivery{PlaybackID: playbackID, Path: path, Title: song.DisplayName}); err != nil {
		if errors.Is(err, apperrors.ErrPlayerNotConnected) {
			log.Warn("no player connected, delivery will start when one connects")
		} else {
			log.WithError(err).Warn("delivery to player failed")
		}
	}

	c.metrics.SongDelivered()
	c.audit.Record(audit.EventSongStarted, audit.LevelInfo, "Playing "+song.DisplayName,
		audit.EventCorrelation{SongID: &song.ID, PlaybackID: &playbackID}, map[string]any{"media_id": song.Ref.ID})
	log.Info("song delivered")
	send("🎶 Playing " + song.DisplayName)
}

// release drops the reference held for a finished song. Failures never block the next delivery.
func (c *Controller) release(song media.Song) {
	c.mu.Lock()
	playing := c.playing
	if playing != nil && playing.song.ID == song.ID {
		c.playing = nil
	}
	c.mu.Unlock()

	if playing == nil || playing.song.ID != song.ID {
		c.recordDefect(fmt.Errorf("no file recorded for finished song %s", song.ID), &song)
		return
	}
	if err := c.fetcher.Release(playing.path); err != nil {
		c.recordDefect(err, &song)
	}
}

func (c *Controller) releasePlaying() {
	c.mu.Lock()
	playing := c.playing
	c.playing = nil
	c.state = StateIdle
	c.mu.Unlock()

	c.player.ClearDelivery()
	if playing == nil {
		return
	}
	if err := c.fetcher.Release(playing.path); err != nil {
		c.recordDefect(err, &playing.song)
	}
}

func (c *Controller) reportFetchFailure(song media.Song, err error, send Sender) {
	c.metrics.FetchFailed()
	c.logger.WithError(err).WithField("song", song.DisplayName).Warn("fetch failed")
	c.audit.Record(audit.EventFetchFailed, audit.LevelWarn, err.Error(),
		audit.EventCorrelation{SongID: &song.ID}, map[string]any{"media_id": song.Ref.ID, "kind": string(apperrors.KindOf(err))})

	switch apperrors.KindOf(err) {
	case apperrors.KindTransient:
		send(fmt.Sprintf("⚠️ Try again: %s (skipping %s)", err.Error(), song.DisplayName))
	default:
		send(fmt.Sprintf("🛑 Error: %s (skipping %s)", err.Error(), song.DisplayName))
	}
}

func (c *Controller) recordDefect(err error, song *media.Song) {
	c.metrics.LifecycleDefect()
	c.logger.WithError(err).Error("file lifecycle defect")
	correlation := audit.EventCorrelation{}
	if song != nil {
		correlation.SongID = &song.ID
	}
	c.audit.Record(audit.EventLifecycleDefect, audit.LevelError, err.Error(), correlation, nil)
}

// playerCall treats a missing player as success: the channel records the state
// and replays it to the next player that connects.
func (c *Controller) playerCall(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrPlayerNotConnected) {
		c.logger.WithField("op", op).Info("no player connected, state kept for replay")
		return nil
	}
	return err
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Controller) setLastSender(send Sender) {
	c.mu.Lock()
	c.lastSend = send
	c.mu.Unlock()
}

func (c *Controller) getLastSender() Sender {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastSend == nil {
		return c.logSender
	}
	return c.lastSend
}

func (c *Controller) logSender(text string) {
	c.logger.WithField("reply", text).Info("announcement")
}

func orNoop(send Sender) Sender {
	if send == nil {
		return func(string) {}
	}
	return send
}
