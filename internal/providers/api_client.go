package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/stitts-dev/match-predictor/internal/models"
)

const (
	defaultAPITimeout  = 30 * time.Second
	defaultAPIRate     = 5 // requests per second
	defaultAPIBurst    = 10
	breakerMinRequests = 3
	breakerRatio       = 0.6
)

// APIClientOptions tune the upstream client. Zero values take defaults.
type APIClientOptions struct {
	Timeout   time.Duration
	RateLimit int // requests per second
	Burst     int
}

// PredictionAPIClient talks to the upstream prediction pipeline over HTTP.
// Every call passes a shared rate limiter and a circuit breaker. A pair the
// pipeline has not computed yet comes back as (nil, nil), never as an error.
type PredictionAPIClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	baseURL    string
	apiKey     string
	logger     *logrus.Logger
}

// NewPredictionAPIClient creates a client for the pipeline at baseURL.
// apiKey may be empty for unauthenticated deployments.
func NewPredictionAPIClient(baseURL, apiKey string, opts APIClientOptions, logger *logrus.Logger) *PredictionAPIClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}
	rps := opts.RateLimit
	if rps <= 0 {
		rps = defaultAPIRate
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultAPIBurst
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "prediction-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerMinRequests && failureRatio >= breakerRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("Prediction API circuit breaker state changed")
		},
	})

	return &PredictionAPIClient{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		breaker:    cb,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger,
	}
}

// GetPrediction asks the pipeline for the pair's current prediction. A 404
// or null body means none has been computed yet and yields (nil, nil).
func (c *PredictionAPIClient) GetPrediction(ctx context.Context, homeTeam, awayTeam string) (*models.Prediction, error) {
	const op = "prediction lookup"

	params := url.Values{}
	params.Set("homeTeam", homeTeam)
	params.Set("awayTeam", awayTeam)

	var prediction *models.Prediction
	found, err := c.getJSON(ctx, op, "/api/v1/predictions?"+params.Encode(), &prediction)
	if err != nil {
		return nil, err
	}
	if !found || prediction == nil {
		return nil, nil
	}

	if prediction.Source == "" {
		prediction.Source = models.SourceServer
	}
	if prediction.GeneratedAt.IsZero() {
		prediction.GeneratedAt = time.Now().UTC()
	}
	return prediction, nil
}

// AccuracyQuery filters GetAccuracyStats. Nil times mean no bound.
type AccuracyQuery struct {
	DateFrom  *time.Time
	DateTo    *time.Time
	ModelType string
}

// GetAccuracyStats pulls aggregated accuracy rows from the pipeline.
func (c *PredictionAPIClient) GetAccuracyStats(ctx context.Context, query AccuracyQuery) ([]models.AccuracyStat, error) {
	const op = "accuracy stats"

	params := url.Values{}
	if query.DateFrom != nil {
		params.Set("date_from", query.DateFrom.UTC().Format(time.RFC3339))
	}
	if query.DateTo != nil {
		params.Set("date_to", query.DateTo.UTC().Format(time.RFC3339))
	}
	if query.ModelType != "" {
		params.Set("model_type", query.ModelType)
	}

	path := "/api/v1/accuracy"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var stats []models.AccuracyStat
	found, err := c.getJSON(ctx, op, path, &stats)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return stats, nil
}

// TriggerUpdate asks the pipeline to recompute its predictions. The bool
// reports whether the pipeline accepted the request.
func (c *PredictionAPIClient) TriggerUpdate(ctx context.Context) (bool, error) {
	return c.doJSON(ctx, "prediction refresh", http.MethodPost, "/api/v1/predictions/refresh", nil)
}

// RecentRecords pulls prediction rows changed since the given time. The
// realtime manager uses it as the polling fallback while the feed is down.
func (c *PredictionAPIClient) RecentRecords(ctx context.Context, since time.Time) ([]models.PredictionRecord, error) {
	const op = "recent records"

	path := "/api/v1/records"
	if !since.IsZero() {
		params := url.Values{}
		params.Set("since", since.UTC().Format(time.RFC3339))
		path += "?" + params.Encode()
	}

	var records []models.PredictionRecord
	found, err := c.getJSON(ctx, op, path, &records)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return records, nil
}

// Healthy reports whether the breaker currently lets calls through.
func (c *PredictionAPIClient) Healthy() bool {
	return c.breaker.State() == gobreaker.StateClosed
}

// BreakerState exposes the raw breaker state for status reporting.
func (c *PredictionAPIClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *PredictionAPIClient) getJSON(ctx context.Context, op, path string, dest interface{}) (bool, error) {
	return c.doJSON(ctx, op, http.MethodGet, path, dest)
}

// doJSON performs one rate-limited request through the breaker and decodes
// the body into dest when given. The bool reports whether the resource
// existed; a 404 is a normal outcome and never trips the breaker.
func (c *PredictionAPIClient) doJSON(ctx context.Context, op, method, path string, dest interface{}) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, classifyAPIErr(op, err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return false, nil
		case resp.StatusCode >= http.StatusBadRequest:
			return nil, &apiStatusError{StatusCode: resp.StatusCode}
		}

		if dest == nil {
			return true, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return true, nil
	})
	if err != nil {
		return false, classifyAPIErr(op, err)
	}
	return result.(bool), nil
}

// apiStatusError carries a non-2xx upstream status through the breaker.
type apiStatusError struct {
	StatusCode int
}

func (e *apiStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// classifyAPIErr maps transport faults onto the service error taxonomy.
func classifyAPIErr(op string, err error) error {
	var statusErr *apiStatusError
	var netErr net.Error
	switch {
	case errors.As(err, &statusErr):
		return &models.ServiceError{Op: op, StatusCode: statusErr.StatusCode, Err: err}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &models.ServiceError{Op: op, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &models.TimeoutError{Op: op, Err: err}
	case errors.Is(err, context.Canceled):
		return &models.AbortedError{Op: op, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &models.TimeoutError{Op: op, Err: err}
	default:
		return &models.NetworkError{Op: op, Err: err}
	}
}
