package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-predictor/internal/models"
)

const (
	eventBuffer      = 64
	handshakeTimeout = 10 * time.Second
	readDeadline     = 60 * time.Second
	pingInterval     = 25 * time.Second
)

// PullFunc fetches recent prediction rows over the non-streaming path. The
// provider HTTP client supplies one.
type PullFunc func(ctx context.Context, since time.Time) ([]models.PredictionRecord, error)

// FeedSource is the production DataSource: change events arrive over a
// websocket feed, degraded polling goes through the pull function. Each
// Subscribe opens a fresh connection; reconnect policy belongs to the
// SyncManager, not here.
type FeedSource struct {
	wsURL   string
	headers http.Header
	pull    PullFunc
	logger  *logrus.Logger
}

// NewFeedSource creates a FeedSource for the given websocket endpoint.
func NewFeedSource(wsURL string, pull PullFunc, logger *logrus.Logger) *FeedSource {
	return &FeedSource{
		wsURL:   wsURL,
		headers: http.Header{},
		pull:    pull,
		logger:  logger,
	}
}

// SetHeader adds a handshake header, typically authorization.
func (s *FeedSource) SetHeader(key, value string) {
	s.headers.Set(key, value)
}

// feedEnvelope is the upstream wire format.
type feedEnvelope struct {
	Type    string                   `json:"type"`
	Table   string                   `json:"table,omitempty"`
	Event   models.EventType         `json:"event,omitempty"`
	New     *models.PredictionRecord `json:"new,omitempty"`
	Old     *models.PredictionRecord `json:"old,omitempty"`
	Message string                   `json:"message,omitempty"`
}

// Subscribe dials the feed, registers for the table's changes and returns
// the event stream. The stream closes when the connection drops for any
// reason, including context cancellation.
func (s *FeedSource) Subscribe(ctx context.Context, table string) (<-chan models.RecordEvent, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, s.wsURL, s.headers)
	if err != nil {
		return nil, &models.NetworkError{Op: "realtime subscribe", Err: err}
	}

	fc := &feedConn{conn: conn}
	if err := fc.writeJSON(map[string]string{"type": "subscribe", "table": table}); err != nil {
		conn.Close()
		return nil, &models.NetworkError{Op: "realtime subscribe", Err: err}
	}

	s.logger.WithFields(logrus.Fields{
		"url":   s.wsURL,
		"table": table,
	}).Info("Realtime feed subscribed")

	events := make(chan models.RecordEvent, eventBuffer)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go s.pingLoop(fc, done)
	go s.readLoop(fc, table, events, done)

	return events, nil
}

// FetchRecent delegates to the pull path.
func (s *FeedSource) FetchRecent(ctx context.Context, _ string, since time.Time) ([]models.PredictionRecord, error) {
	return s.pull(ctx, since)
}

// readLoop decodes envelopes until the connection fails, then closes the
// event stream so the consumer sees the drop.
func (s *FeedSource) readLoop(fc *feedConn, table string, events chan<- models.RecordEvent, done chan struct{}) {
	defer func() {
		fc.conn.Close()
		close(events)
		close(done)
	}()

	for {
		fc.conn.SetReadDeadline(time.Now().Add(readDeadline))

		var envelope feedEnvelope
		if err := fc.conn.ReadJSON(&envelope); err != nil {
			s.logger.WithError(err).Warn("Realtime feed read failed")
			return
		}

		switch envelope.Type {
		case "change":
			if envelope.Table != "" && envelope.Table != table {
				continue
			}
			ev := models.RecordEvent{Type: envelope.Event, New: envelope.New, Old: envelope.Old}
			select {
			case events <- ev:
			default:
				s.logger.Warn("Event buffer full, dropping change event")
			}
		case "ping":
			if err := fc.writeJSON(map[string]string{"type": "pong"}); err != nil {
				s.logger.WithError(err).Warn("Pong write failed")
				return
			}
		case "subscribed":
			s.logger.WithField("table", envelope.Table).Debug("Subscription acknowledged")
		case "error":
			s.logger.WithField("message", envelope.Message).Error("Realtime feed reported an error")
		default:
			s.logger.WithField("type", envelope.Type).Debug("Ignoring unknown feed message")
		}
	}
}

// pingLoop keeps the connection alive from our side.
func (s *FeedSource) pingLoop(fc *feedConn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := fc.writeJSON(map[string]string{"type": "ping"}); err != nil {
				s.logger.WithError(err).Warn("Ping write failed")
				fc.conn.Close()
				return
			}
		}
	}
}

// feedConn serializes writers; gorilla allows one concurrent writer only.
type feedConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (fc *feedConn) writeJSON(v interface{}) error {
	fc.writeMu.Lock()
	defer fc.writeMu.Unlock()
	return fc.conn.WriteJSON(v)
}
