package player

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/strefethen/harmony-go/internal/apperrors"
)

// EndedFunc receives the playback id of a file the player finished.
type EndedFunc func(playbackID string)

// ConnectionManager manages the WebSocket connection to the player page.
//
// Only one player is attached at a time. Delivery, pause state and volume are recorded
// even while no player is connected and replayed when a player announces itself with "ready".
type ConnectionManager struct {
	mu           sync.RWMutex
	conn         *websocket.Conn
	current      *Delivery
	paused       bool
	volume       *int
	onEnded      []EndedFunc
	pingInterval time.Duration
	writeTimeout time.Duration
	logger       *logrus.Logger

	// gorilla connections allow a single concurrent writer
	writeMu sync.Mutex

	// For cleanup
	stopPing chan struct{}
}

// Options configures a ConnectionManager.
type Options struct {
	PingInterval time.Duration // Optional: defaults to 30s
	WriteTimeout time.Duration // Optional: defaults to 5s, used when the context has no deadline
	Logger       *logrus.Logger
}

// NewConnectionManager creates a new connection manager.
func NewConnectionManager(opts Options) *ConnectionManager {
	if opts.PingInterval == 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &ConnectionManager{
		pingInterval: opts.PingInterval,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger,
	}
}

// OnEnded subscribes fn to "ended" notifications. Call before the first connection.
func (m *ConnectionManager) OnEnded(fn EndedFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnded = append(m.onEnded, fn)
}

// SetConnection registers a new WebSocket connection from the player.
func (m *ConnectionManager) SetConnection(conn *websocket.Conn) {
	m.mu.Lock()

	// Close existing connection if any
	if m.conn != nil {
		m.conn.Close()
	}
	m.stopPingLocked()

	m.conn = conn
	stop := make(chan struct{})
	m.stopPing = stop
	m.mu.Unlock()

	go m.startPingLoop(conn, stop)
	go m.readMessages(conn)

	m.logger.WithField("remote", conn.RemoteAddr().String()).Info("player connected")
}

func (m *ConnectionManager) startPingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.writeTo(context.Background(), conn, ControlMessage{Type: TypePing}); err != nil {
				m.logger.WithError(err).Warn("failed to send ping")
			}
		case <-stop:
			return
		}
	}
}

func (m *ConnectionManager) readMessages(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(conn)
			return
		}

		m.handleMessage(conn, message)
	}
}

func (m *ConnectionManager) handleMessage(conn *websocket.Conn, message []byte) {
	var incoming IncomingMessage
	if err := json.Unmarshal(message, &incoming); err != nil {
		m.logger.WithError(err).Warn("failed to parse player message")
		return
	}

	switch incoming.Type {
	case TypePong:
		// Keepalive response, nothing to do
		return
	case TypeReady:
		m.replayState(conn)
	case TypeEnded:
		if incoming.PlaybackID == "" {
			m.logger.Warn("ended message without playbackId")
			return
		}
		m.mu.RLock()
		subscribers := append([]EndedFunc(nil), m.onEnded...)
		m.mu.RUnlock()
		for _, fn := range subscribers {
			fn(incoming.PlaybackID)
		}
	default:
		m.logger.WithField("type", incoming.Type).Warn("unknown player message type")
	}
}

// replayState brings a freshly loaded page up to date.
func (m *ConnectionManager) replayState(conn *websocket.Conn) {
	m.mu.RLock()
	current := m.current
	volume := m.volume
	paused := m.paused
	m.mu.RUnlock()

	ctx := context.Background()
	if volume != nil {
		if err := m.writeTo(ctx, conn, VolumeMessage{Type: TypeSetVolume, Volume: *volume}); err != nil {
			m.logger.WithError(err).Warn("failed to replay volume")
			return
		}
	}
	if current != nil {
		if err := m.writeTo(ctx, conn, deliverMessage(*current)); err != nil {
			m.logger.WithError(err).Warn("failed to replay delivery")
			return
		}
		if paused {
			_ = m.writeTo(ctx, conn, ControlMessage{Type: TypePause})
		}
	}
	m.logger.WithField("replayed_delivery", current != nil).Debug("player ready")
}

func (m *ConnectionManager) handleDisconnect(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A replaced connection must not tear down its successor.
	if m.conn != conn {
		return
	}

	m.logger.Info("player disconnected")
	m.conn = nil
	m.stopPingLocked()
}

func (m *ConnectionManager) stopPingLocked() {
	if m.stopPing != nil {
		close(m.stopPing)
		m.stopPing = nil
	}
}

// Deliver records d as the current file and tells the player to play it.
// When no player is connected the delivery is kept for replay and ErrPlayerNotConnected is returned.
func (m *ConnectionManager) Deliver(ctx context.Context, d Delivery) error {
	m.mu.Lock()
	m.current = &d
	m.paused = false
	m.mu.Unlock()

	return m.send(ctx, deliverMessage(d))
}

// ClearDelivery forgets the current file once the queue runs dry.
func (m *ConnectionManager) ClearDelivery() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	m.paused = false
}

// Current returns the file most recently delivered.
func (m *ConnectionManager) Current() (Delivery, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Delivery{}, false
	}
	return *m.current, true
}

// Pause asks the player to pause.
func (m *ConnectionManager) Pause(ctx context.Context) error {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
	return m.send(ctx, ControlMessage{Type: TypePause})
}

// Resume asks the player to resume.
func (m *ConnectionManager) Resume(ctx context.Context) error {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	return m.send(ctx, ControlMessage{Type: TypeResume})
}

// SetVolume sets the player volume and remembers it for players that connect later.
func (m *ConnectionManager) SetVolume(ctx context.Context, volume int) error {
	m.mu.Lock()
	m.volume = &volume
	m.mu.Unlock()
	return m.send(ctx, VolumeMessage{Type: TypeSetVolume, Volume: volume})
}

// IsConnected returns whether a player is connected.
func (m *ConnectionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn != nil
}

// GetStatus returns the current connection status.
func (m *ConnectionManager) GetStatus() ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := ConnectionStatus{Player: "disconnected", Paused: m.paused}
	if m.conn != nil {
		status.Player = "connected"
	}
	if m.current != nil {
		status.PlaybackID = m.current.PlaybackID
		status.Title = m.current.Title
	}
	if m.volume != nil {
		volume := *m.volume
		status.Volume = &volume
	}
	return status
}

func (m *ConnectionManager) send(ctx context.Context, msg any) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return apperrors.NewPlayerNotConnectedError()
	}
	return m.writeTo(ctx, conn, msg)
}

func (m *ConnectionManager) writeTo(ctx context.Context, conn *websocket.Conn, msg any) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(m.writeTimeout)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteJSON(msg); err != nil {
		return apperrors.NewUpstreamUnreachableError("Player", err)
	}
	return nil
}

// Close closes the connection manager.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.stopPingLocked()
}

func deliverMessage(d Delivery) DeliverMessage {
	return DeliverMessage{
		Type:       TypeDeliver,
		PlaybackID: d.PlaybackID,
		URL:        d.AudioURL(),
		Title:      d.Title,
	}
}
