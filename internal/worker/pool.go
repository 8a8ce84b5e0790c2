package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-predictor/internal/engine"
	"github.com/stitts-dev/match-predictor/internal/models"
)

// Message type tags for the computation dispatch protocol.
const (
	MessageCalculate = "CALCULATE_PREDICTIONS"
	MessageResult    = "CALCULATE_PREDICTIONS_RESULT"
	MessageError     = "ERROR"
)

// RequestPayload carries the inputs for one prediction computation.
type RequestPayload struct {
	Matches  []models.Match     `json:"matches"`
	HomeTeam string             `json:"homeTeam"`
	AwayTeam string             `json:"awayTeam"`
	Odds     *models.MarketOdds `json:"odds,omitempty"`
}

// Request is a tagged computation message. ID pairs it with its Response.
type Request struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Payload RequestPayload `json:"payload"`
}

// Response is the tagged reply to a Request: either a Result or an Error,
// never both.
type Response struct {
	ID     string             `json:"id"`
	Type   string             `json:"type"`
	Result *models.Prediction `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

type job struct {
	req   *Request
	reply chan *Response
}

type predictFunc func(matches []models.Match, homeTeam, awayTeam string, odds *models.MarketOdds) (*models.Prediction, error)

// Stats tracks pool activity.
type Stats struct {
	JobsProcessed int64     `json:"jobs_processed"`
	JobsFailed    int64     `json:"jobs_failed"`
	LastJobAt     time.Time `json:"last_job_at"`
}

// Pool runs prediction computations on a fixed set of goroutines so the
// request path never blocks on model work. Callers and workers communicate
// only through tagged messages.
type Pool struct {
	predict     predictFunc
	workerCount int
	jobs        chan *job
	logger      *logrus.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mutex     sync.RWMutex

	stats      Stats
	statsMutex sync.RWMutex
}

// NewPool creates a computation pool with the given number of workers.
func NewPool(workerCount int, logger *logrus.Logger) *Pool {
	if workerCount <= 0 {
		workerCount = 4
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		predict:     engine.Predict,
		workerCount: workerCount,
		jobs:        make(chan *job, workerCount*4),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.isRunning {
		return fmt.Errorf("computation pool is already running")
	}
	p.isRunning = true

	p.logger.WithField("workers", p.workerCount).Info("Starting computation pool")

	p.wg.Add(p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		go p.runWorker(i)
	}
	return nil
}

// Stop drains the pool and waits for in-flight jobs to finish.
func (p *Pool) Stop() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.isRunning {
		return fmt.Errorf("computation pool is not running")
	}

	p.logger.Info("Stopping computation pool")
	p.cancel()
	p.wg.Wait()
	p.isRunning = false
	return nil
}

// IsRunning reports whether workers are active.
func (p *Pool) IsRunning() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.isRunning
}

// GetStats returns a snapshot of pool activity.
func (p *Pool) GetStats() Stats {
	p.statsMutex.RLock()
	defer p.statsMutex.RUnlock()
	return p.stats
}

// Submit queues a tagged request and waits for its tagged response. The
// returned error covers dispatch failures only (pool stopped, context done);
// computation failures come back inside the Response with type ERROR.
func (p *Pool) Submit(ctx context.Context, req *Request) (*Response, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	j := &job{req: req, reply: make(chan *Response, 1)}

	select {
	case p.jobs <- j:
	case <-p.ctx.Done():
		return nil, fmt.Errorf("computation pool stopped")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-j.reply:
		return resp, nil
	case <-p.ctx.Done():
		return nil, fmt.Errorf("computation pool stopped")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Predict is the typed convenience path over Submit: it builds the request,
// dispatches it, and unwraps the tagged response.
func (p *Pool) Predict(ctx context.Context, matches []models.Match, homeTeam, awayTeam string, odds *models.MarketOdds) (*models.Prediction, error) {
	req := &Request{
		Type: MessageCalculate,
		Payload: RequestPayload{
			Matches:  matches,
			HomeTeam: homeTeam,
			AwayTeam: awayTeam,
			Odds:     odds,
		},
	}

	resp, err := p.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Type == MessageError {
		return nil, &models.ComputationError{Stage: "compute", Err: fmt.Errorf("%s", resp.Error)}
	}
	return resp.Result, nil
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	log := p.logger.WithField("worker_id", id)
	log.Debug("Computation worker started")

	for {
		select {
		case <-p.ctx.Done():
			log.Debug("Computation worker stopped")
			return
		case j := <-p.jobs:
			resp := p.process(j.req)
			j.reply <- resp

			p.statsMutex.Lock()
			p.stats.JobsProcessed++
			if resp.Type == MessageError {
				p.stats.JobsFailed++
			}
			p.stats.LastJobAt = time.Now()
			p.statsMutex.Unlock()
		}
	}
}

// process executes one tagged request. Panics in model code are contained
// here and surface as tagged ERROR responses rather than tearing down the
// worker.
func (p *Pool) process(req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"request_id": req.ID,
				"panic":      r,
			}).Error("Computation worker recovered from panic")
			resp = &Response{ID: req.ID, Type: MessageError, Error: fmt.Sprintf("computation panic: %v", r)}
		}
	}()

	if req.Type != MessageCalculate {
		return &Response{ID: req.ID, Type: MessageError, Error: fmt.Sprintf("unknown message type %q", req.Type)}
	}

	prediction, err := p.predict(req.Payload.Matches, req.Payload.HomeTeam, req.Payload.AwayTeam, req.Payload.Odds)
	if err != nil {
		return &Response{ID: req.ID, Type: MessageError, Error: err.Error()}
	}
	return &Response{ID: req.ID, Type: MessageResult, Result: prediction}
}
