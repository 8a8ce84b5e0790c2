package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-predictor/internal/models"
)

// Config carries the reconnect and polling policy. Zero values take the
// defaults.
type Config struct {
	Table        string
	MaxRetries   int           // consecutive failures tolerated before degrading
	BaseDelay    time.Duration // first backoff step
	MaxDelay     time.Duration // backoff cap
	PollInterval time.Duration // degraded polling cadence
	PollTimeout  time.Duration // budget for one poll fetch
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = "predictions"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 10 * time.Second
	}
	return c
}

// DataSource is the push/pull upstream the manager syncs from. Subscribe
// returns a stream that closes when the subscription drops; a closed stream
// is a channel error, a failed Subscribe is a failed reconnect attempt.
// FetchRecent pulls current rows while push sync is unavailable.
type DataSource interface {
	Subscribe(ctx context.Context, table string) (<-chan models.RecordEvent, error)
	FetchRecent(ctx context.Context, table string, since time.Time) ([]models.PredictionRecord, error)
}

// StatusSink receives connection lifecycle notifications.
type StatusSink interface {
	BroadcastConnectionStatus(status models.ConnectionStatus, note string)
}

var errStreamClosed = errors.New("event stream closed")

// SyncManager keeps a local view of the upstream predictions table current.
// It runs a four-state machine: disconnected, connecting, connected and
// degraded. Degraded is not terminal: the manager polls at a fixed interval
// and keeps trying to restore the push stream. The reconnect attempt counter
// resets to zero only on reaching connected.
type SyncManager struct {
	source  DataSource
	cfg     Config
	sink    StatusSink
	onApply func(models.RecordEvent)
	logger  *logrus.Logger

	backoff *backoff.ExponentialBackOff

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	runMutex  sync.Mutex

	mu            sync.RWMutex
	state         models.ConnectionState
	attempts      int
	lastErr       error
	lastConnected time.Time
	eventsApplied int64
	records       []*models.PredictionRecord
	index         map[string]int
	lastPoll      time.Time
}

// NewSyncManager creates a manager over the given source. sink may be nil.
func NewSyncManager(source DataSource, cfg Config, sink StatusSink, logger *logrus.Logger) *SyncManager {
	cfg = cfg.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = cfg.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	ctx, cancel := context.WithCancel(context.Background())

	return &SyncManager{
		source:  source,
		cfg:     cfg,
		sink:    sink,
		logger:  logger,
		backoff: b,
		ctx:     ctx,
		cancel:  cancel,
		state:   models.StateDisconnected,
		index:   make(map[string]int),
	}
}

// SetApplyHook registers a callback run after each applied push event. Must
// be called before Start.
func (m *SyncManager) SetApplyHook(fn func(models.RecordEvent)) {
	m.onApply = fn
}

// Start launches the sync loop.
func (m *SyncManager) Start() error {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()

	if m.isRunning {
		return fmt.Errorf("sync manager is already running")
	}
	m.isRunning = true

	m.logger.WithFields(logrus.Fields{
		"table":         m.cfg.Table,
		"max_retries":   m.cfg.MaxRetries,
		"base_delay":    m.cfg.BaseDelay,
		"poll_interval": m.cfg.PollInterval,
	}).Info("Starting realtime sync")

	m.wg.Add(1)
	go m.run()
	return nil
}

// Stop halts the sync loop and waits for it to exit.
func (m *SyncManager) Stop() error {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()

	if !m.isRunning {
		return fmt.Errorf("sync manager is not running")
	}

	m.logger.Info("Stopping realtime sync")
	m.cancel()
	m.wg.Wait()
	m.isRunning = false
	m.transition(models.StateDisconnected, "")
	return nil
}

// Status returns a snapshot of the connection state.
func (m *SyncManager) Status() models.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

// Records returns the synced rows in arrival order.
func (m *SyncManager) Records() []models.PredictionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.PredictionRecord, len(m.records))
	for i, rec := range m.records {
		out[i] = *rec
	}
	return out
}

// run drives the state machine. Each iteration handles exactly one state;
// transitions happen through the helpers so every change is logged and
// notified in one place.
func (m *SyncManager) run() {
	defer m.wg.Done()

	for m.ctx.Err() == nil {
		switch m.currentState() {
		case models.StateDisconnected:
			m.transition(models.StateConnecting, "")

		case models.StateConnecting:
			events, err := m.source.Subscribe(m.ctx, m.cfg.Table)
			if err != nil {
				m.recordFailure(err)
				continue
			}
			m.enterConnected()
			m.consume(events)

		case models.StateDegraded:
			m.degradedCycle()
		}
	}
}

// consume applies pushed events until the stream drops or the manager stops.
func (m *SyncManager) consume(events <-chan models.RecordEvent) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				m.mu.Lock()
				m.lastErr = errStreamClosed
				m.mu.Unlock()
				m.logger.Warn("Realtime stream dropped, reconnecting")
				m.transition(models.StateConnecting, "")
				return
			}
			m.applyEvent(ev)
		}
	}
}

// recordFailure counts one failed reconnect. Inside the retry budget it
// sleeps the next backoff step; past it, the manager degrades to polling.
func (m *SyncManager) recordFailure(err error) {
	m.mu.Lock()
	m.attempts++
	m.lastErr = err
	attempts := m.attempts
	m.mu.Unlock()

	if attempts >= m.cfg.MaxRetries {
		m.logger.WithError(err).WithField("attempts", attempts).Error("Reconnect budget exhausted, degrading to polling")
		m.transition(models.StateDegraded, "connection lost, polling fallback active")
		return
	}

	delay := m.backoff.NextBackOff()
	m.logger.WithFields(logrus.Fields{
		"attempt": attempts,
		"delay":   delay,
	}).WithError(err).Warn("Subscribe failed, backing off")
	m.sleep(delay)
}

// enterConnected resets the retry bookkeeping. The attempt counter resets
// here and nowhere else.
func (m *SyncManager) enterConnected() {
	m.mu.Lock()
	prior := m.attempts
	m.attempts = 0
	m.lastErr = nil
	m.lastConnected = time.Now()
	m.mu.Unlock()

	m.backoff.Reset()

	note := ""
	if prior > 0 {
		note = "connection restored"
	}
	m.transition(models.StateConnected, note)
}

// degradedCycle is one polling interval: pull current rows, then try to
// restore the push stream. Attempts keep counting; only a successful
// subscribe resets them.
func (m *SyncManager) degradedCycle() {
	if !m.sleep(m.cfg.PollInterval) {
		return
	}

	m.poll()

	events, err := m.source.Subscribe(m.ctx, m.cfg.Table)
	if err != nil {
		m.mu.Lock()
		m.attempts++
		m.lastErr = err
		attempts := m.attempts
		m.mu.Unlock()
		m.logger.WithError(err).WithField("attempts", attempts).Debug("Reconnect from degraded failed")
		return
	}

	m.enterConnected()
	m.consume(events)
}

// poll merges the source's current rows as upserts.
func (m *SyncManager) poll() {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.PollTimeout)
	defer cancel()

	m.mu.RLock()
	since := m.lastPoll
	m.mu.RUnlock()

	rows, err := m.source.FetchRecent(ctx, m.cfg.Table, since)
	if err != nil {
		m.logger.WithError(err).Warn("Degraded poll failed")
		return
	}

	m.mu.Lock()
	for i := range rows {
		m.upsertLocked(&rows[i])
	}
	m.lastPoll = time.Now()
	m.mu.Unlock()

	m.logger.WithField("rows", len(rows)).Debug("Degraded poll merged")
}

// applyEvent folds one push event into the record list, last writer wins.
func (m *SyncManager) applyEvent(ev models.RecordEvent) {
	m.mu.Lock()
	applied := false
	switch ev.Type {
	case models.EventInsert, models.EventUpdate:
		if ev.New != nil {
			m.upsertLocked(ev.New)
			applied = true
		}
	case models.EventDelete:
		target := ev.Old
		if target == nil {
			target = ev.New
		}
		if target != nil {
			m.removeLocked(target.ID)
			applied = true
		}
	default:
		m.logger.WithField("event_type", ev.Type).Warn("Ignoring unknown realtime event type")
	}
	if applied {
		m.eventsApplied++
	}
	m.mu.Unlock()

	if applied && m.onApply != nil {
		m.onApply(ev)
	}
}

func (m *SyncManager) upsertLocked(rec *models.PredictionRecord) {
	if pos, ok := m.index[rec.ID]; ok {
		m.records[pos] = rec
		return
	}
	m.index[rec.ID] = len(m.records)
	m.records = append(m.records, rec)
}

func (m *SyncManager) removeLocked(id string) {
	pos, ok := m.index[id]
	if !ok {
		return
	}
	m.records = append(m.records[:pos], m.records[pos+1:]...)
	delete(m.index, id)
	for i := pos; i < len(m.records); i++ {
		m.index[m.records[i].ID] = i
	}
}

func (m *SyncManager) currentState() models.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// transition moves the machine to a new state, logging and notifying once
// per change. A non-empty note is forwarded to the sink with the status.
func (m *SyncManager) transition(to models.ConnectionState, note string) {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return
	}
	m.state = to
	status := m.statusLocked()
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"from": from,
		"to":   to,
	}).Info("Realtime sync state changed")

	if m.sink != nil {
		m.sink.BroadcastConnectionStatus(status, note)
	}
}

func (m *SyncManager) statusLocked() models.ConnectionStatus {
	status := models.ConnectionStatus{
		State:             m.state,
		ReconnectAttempts: m.attempts,
		LastConnected:     m.lastConnected,
		Polling:           m.state == models.StateDegraded,
		EventsApplied:     m.eventsApplied,
	}
	if m.lastErr != nil {
		status.LastError = m.lastErr.Error()
	}
	return status
}

// sleep waits d unless the manager stops first. Returns false on stop.
func (m *SyncManager) sleep(d time.Duration) bool {
	if d <= 0 {
		return m.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-m.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
