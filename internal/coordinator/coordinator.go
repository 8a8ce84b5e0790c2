package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-predictor/internal/cache"
	"github.com/stitts-dev/match-predictor/internal/models"
)

// DefaultLookupTimeout bounds one provider round trip.
const DefaultLookupTimeout = 30 * time.Second

// PredictionProvider is the external prediction source. A nil prediction
// with a nil error is the normal "no data" outcome, not a failure.
type PredictionProvider interface {
	GetPrediction(ctx context.Context, homeTeam, awayTeam string) (*models.Prediction, error)
}

// MatchSource supplies the pair's shared history for local computation.
type MatchSource interface {
	MatchesBetweenTeams(ctx context.Context, homeTeam, awayTeam string) ([]models.Match, error)
}

// Computer produces a local prediction from raw history. worker.Pool
// satisfies it.
type Computer interface {
	Predict(ctx context.Context, matches []models.Match, homeTeam, awayTeam string, odds *models.MarketOdds) (*models.Prediction, error)
}

// Broadcaster fans completed predictions out to subscribers. Optional.
type Broadcaster interface {
	BroadcastPredictionUpdate(pairKey string, prediction *models.Prediction)
}

// Options tune a Coordinator. Zero values take defaults.
type Options struct {
	LookupTimeout time.Duration
	Broadcaster   Broadcaster
}

// Coordinator serializes prediction requests per pair key: one provider call
// in flight per pair, a cooldown window after empty results, and a locally
// computed baseline scheduled whenever the provider has nothing. All requests
// for a pair inside either guard return nil without touching the provider.
type Coordinator struct {
	cache    *cache.ResultCache
	provider PredictionProvider
	matches  MatchSource
	computer Computer
	hub      Broadcaster
	logger   *logrus.Logger

	inflight      *inflightTracker
	lookupTimeout time.Duration

	wg sync.WaitGroup
}

// NewCoordinator wires the request path together.
func NewCoordinator(resultCache *cache.ResultCache, provider PredictionProvider, matches MatchSource, computer Computer, opts Options, logger *logrus.Logger) *Coordinator {
	timeout := opts.LookupTimeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Coordinator{
		cache:         resultCache,
		provider:      provider,
		matches:       matches,
		computer:      computer,
		hub:           opts.Broadcaster,
		logger:        logger,
		inflight:      newInflightTracker(),
		lookupTimeout: timeout,
	}
}

type providerResult struct {
	prediction *models.Prediction
	err        error
}

// Request resolves a prediction for the pair. Returns nil, nil when an
// identical request is already in flight, when the pair is inside its
// negative-result cooldown, or when the provider has no data; only the
// provider's hard failures surface as errors. The in-flight marker is
// cleared on every exit path, cancellation included.
func (c *Coordinator) Request(ctx context.Context, homeTeam, awayTeam string) (*models.Prediction, error) {
	if models.NormalizeTeam(homeTeam) == "" || models.NormalizeTeam(awayTeam) == "" {
		return nil, &models.ValidationError{Field: "team", Message: "team names must not be empty"}
	}
	if models.NormalizeTeam(homeTeam) == models.NormalizeTeam(awayTeam) {
		return nil, &models.ValidationError{Field: "team", Message: "home and away teams must differ"}
	}

	pairKey := models.PairKey(homeTeam, awayTeam)
	log := c.logger.WithField("pair_key", pairKey)

	if !c.inflight.TryAcquire(pairKey) {
		log.Debug("Identical request already in flight")
		return nil, nil
	}
	defer c.inflight.Release(pairKey)

	prediction, cooling := c.cache.Lookup(ctx, pairKey)
	if cooling {
		log.Debug("Pair inside negative-result cooldown")
		return nil, nil
	}
	if prediction != nil {
		return prediction, nil
	}

	// The provider call runs detached so caller cancellation never aborts
	// dispatched work: it completes on its own budget and is discarded if
	// nobody is left waiting.
	resultCh := make(chan providerResult, 1)
	go func() {
		callCtx, cancel := context.WithTimeout(context.Background(), c.lookupTimeout)
		defer cancel()
		p, err := c.provider.GetPrediction(callCtx, homeTeam, awayTeam)
		resultCh <- providerResult{prediction: p, err: err}
	}()

	var res providerResult
	select {
	case res = <-resultCh:
	case <-ctx.Done():
		log.Debug("Caller cancelled, discarding provider result")
		return nil, &models.AbortedError{Op: "prediction request", Err: ctx.Err()}
	}

	if res.err != nil {
		log.WithError(res.err).Warn("Prediction provider failed")
		return nil, res.err
	}

	if res.prediction == nil {
		until := c.cache.StartCooldown(ctx, pairKey)
		log.WithField("cooldown_until", until.Format(time.RFC3339)).Info("Provider returned no prediction, cooling down pair")
		c.scheduleBaseline(pairKey, homeTeam, awayTeam, until)
		return nil, nil
	}

	c.cache.Put(ctx, pairKey, res.prediction)
	if c.hub != nil {
		c.hub.BroadcastPredictionUpdate(pairKey, res.prediction)
	}
	return res.prediction, nil
}

// scheduleBaseline computes a local stand-in off the request path. It lives
// only as long as the cooldown window, so the provider is retried on the
// first request after the window passes.
func (c *Coordinator) scheduleBaseline(pairKey, homeTeam, awayTeam string, until time.Time) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.lookupTimeout)
		defer cancel()
		log := c.logger.WithField("pair_key", pairKey)

		matches, err := c.matches.MatchesBetweenTeams(ctx, homeTeam, awayTeam)
		if err != nil {
			if !models.IsDataNotFound(err) {
				log.WithError(err).Warn("Match lookup for baseline failed")
				return
			}
			matches = nil
		}

		prediction, err := c.computer.Predict(ctx, matches, homeTeam, awayTeam, nil)
		if err != nil {
			log.WithError(err).Warn("Baseline computation failed")
			return
		}

		c.cache.PutBaseline(ctx, pairKey, prediction, until)
		if c.hub != nil {
			c.hub.BroadcastPredictionUpdate(pairKey, prediction)
		}
		log.WithFields(logrus.Fields{
			"matches":    len(matches),
			"confidence": prediction.Confidence,
		}).Info("Baseline prediction cached")
	}()
}

// InFlight reports how many pairs currently have provider work outstanding.
func (c *Coordinator) InFlight() int {
	return c.inflight.Len()
}

// Wait blocks until all scheduled baseline work has finished. Used during
// shutdown and by tests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// inflightTracker marks pair keys with provider work outstanding. TryAcquire
// and Release form the set-before-call, clear-after critical section.
type inflightTracker struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInflightTracker() *inflightTracker {
	return &inflightTracker{keys: make(map[string]struct{})}
}

// TryAcquire marks the key in flight. Returns false when it already is.
func (t *inflightTracker) TryAcquire(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.keys[key]; exists {
		return false
	}
	t.keys[key] = struct{}{}
	return true
}

// Release clears the marker unconditionally.
func (t *inflightTracker) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.keys, key)
}

func (t *inflightTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}
