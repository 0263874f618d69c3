package analytics

import (
	"Shorty-Backend/internal/config"
	"Shorty-Backend/internal/domain"
	"Shorty-Backend/internal/repository"
	"Shorty-Backend/pkg/useragent"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotStarted   = errors.New("processor not started")
	ErrQueueFull    = errors.New("analytics queue is full")
	ErrShuttingDown = errors.New("processor is shutting down")
)

// ClickStore is the part of the storage the processor writes to
type ClickStore interface {
	SaveClick(ctx context.Context, click *domain.Click) error
}

// ClickData represents one successful resolution waiting to be recorded
type ClickData struct {
	LinkID    int64
	ShortCode string
	UserAgent string
	Referer   string
	ClickedAt time.Time
}

// ProcessorConfig holds configuration for the analytics processor
type ProcessorConfig struct {
	WorkerCount     int           // Number of worker goroutines
	BufferSize      int           // Size of the job queue buffer
	RetryAttempts   int           // Number of attempts per click
	RetryDelay      time.Duration // Base delay between retries
	ShutdownTimeout time.Duration // Time to wait for the queue to drain
	AttemptTimeout  time.Duration // Timeout of a single storage write
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() ProcessorConfig {
	return ProcessorConfig{
		WorkerCount:     3,
		BufferSize:      1000,
		RetryAttempts:   3,
		RetryDelay:      time.Second,
		ShutdownTimeout: 30 * time.Second,
		AttemptTimeout:  30 * time.Second,
	}
}

// ConfigFrom builds processor settings from the application config
func ConfigFrom(cfg *config.Analytics) ProcessorConfig {
	pc := DefaultConfig()
	if cfg.Workers > 0 {
		pc.WorkerCount = cfg.Workers
	}
	if cfg.BufferSize > 0 {
		pc.BufferSize = cfg.BufferSize
	}
	if cfg.RetryAttempts > 0 {
		pc.RetryAttempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		pc.RetryDelay = cfg.RetryDelay
	}
	if cfg.ShutdownTimeout > 0 {
		pc.ShutdownTimeout = cfg.ShutdownTimeout
	}
	return pc
}

// Processor records click details asynchronously so that redirects
// never wait on analytics writes
type Processor struct {
	config   ProcessorConfig
	storage  ClickStore
	parser   *useragent.Parser
	log      *zap.Logger
	jobQueue chan *ClickData
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex
}

// NewProcessor creates a new analytics processor. parser may be nil, then
// every click is recorded with an unknown device.
func NewProcessor(storage ClickStore, parser *useragent.Parser, log *zap.Logger, config ProcessorConfig) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		config:   config,
		storage:  storage,
		parser:   parser,
		log:      log,
		jobQueue: make(chan *ClickData, config.BufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing analytics data
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("processor already started")
	}

	p.log.Info("starting analytics processor",
		zap.Int("workers", p.config.WorkerCount),
		zap.Int("buffer_size", p.config.BufferSize),
		zap.Int("retry_attempts", p.config.RetryAttempts),
	)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.started = true
	return nil
}

// Stop closes the queue and waits for the workers to drain it.
// Pending retries are abandoned once ShutdownTimeout passes.
func (p *Processor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrNotStarted
	}
	p.started = false

	p.log.Info("stopping analytics processor", zap.Int("pending", len(p.jobQueue)))
	close(p.jobQueue)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.log.Info("analytics processor stopped gracefully")
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.cancel()
		p.log.Warn("analytics processor shutdown timeout reached")
		return fmt.Errorf("shutdown timeout reached")
	}
}

// SubmitClick queues a click for processing. It never blocks: when the
// queue is full the click is dropped and ErrQueueFull is returned.
func (p *Processor) SubmitClick(clickData *ClickData) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		return ErrNotStarted
	}

	select {
	case p.jobQueue <- clickData:
		p.log.Debug("click data submitted for processing", zap.String("short_code", clickData.ShortCode))
		return nil
	case <-p.ctx.Done():
		return ErrShuttingDown
	default:
		p.log.Error("analytics queue is full, dropping click data",
			zap.String("short_code", clickData.ShortCode),
			zap.Int("queue_size", len(p.jobQueue)),
		)
		return ErrQueueFull
	}
}

func (p *Processor) worker(workerID int) {
	defer p.wg.Done()

	log := p.log.With(zap.Int("worker_id", workerID))
	log.Debug("analytics worker started")

	for clickData := range p.jobQueue {
		p.processClickWithRetry(log, clickData)
	}

	log.Debug("analytics worker stopped")
}

func (p *Processor) processClickWithRetry(log *zap.Logger, clickData *ClickData) {
	var lastErr error

	for attempt := 1; attempt <= p.config.RetryAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(p.ctx, p.config.AttemptTimeout)
		err := p.processClick(ctx, clickData)
		cancel()

		if err == nil {
			if attempt > 1 {
				log.Info("click processing succeeded after retry",
					zap.String("short_code", clickData.ShortCode),
					zap.Int("attempt", attempt),
				)
			}
			return
		}

		if errors.Is(err, repository.ErrLinkNotFound) {
			log.Debug("link removed before click was recorded", zap.String("short_code", clickData.ShortCode))
			return
		}

		lastErr = err
		log.Warn("click processing failed",
			zap.String("short_code", clickData.ShortCode),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.config.RetryAttempts),
			zap.Error(err),
		)

		if attempt == p.config.RetryAttempts {
			break
		}

		// экспоненциальная задержка между попытками
		delay := p.config.RetryDelay * time.Duration(1<<(attempt-1))
		select {
		case <-time.After(delay):
		case <-p.ctx.Done():
			log.Info("worker shutdown during retry delay")
			return
		}
	}

	log.Error("click processing failed after all retries",
		zap.String("short_code", clickData.ShortCode),
		zap.Int("attempts", p.config.RetryAttempts),
		zap.Error(lastErr),
	)
}

func (p *Processor) processClick(ctx context.Context, clickData *ClickData) error {
	click := &domain.Click{
		LinkID:     clickData.LinkID,
		DeviceType: useragent.DeviceUnknown,
		ClickedAt:  clickData.ClickedAt,
	}
	if click.ClickedAt.IsZero() {
		click.ClickedAt = time.Now().UTC()
	}
	if clickData.Referer != "" {
		ref := clickData.Referer
		click.Referer = &ref
	}

	if p.parser != nil {
		info := p.parser.Parse(clickData.UserAgent)
		click.DeviceType = info.DeviceType
		click.Browser = info.Browser
		click.OS = info.OS
	}

	if err := p.storage.SaveClick(ctx, click); err != nil {
		return fmt.Errorf("failed to record click: %w", err)
	}

	return nil
}

// GetStats returns processor statistics
func (p *Processor) GetStats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"started":        p.started,
		"queue_length":   len(p.jobQueue),
		"queue_capacity": cap(p.jobQueue),
		"worker_count":   p.config.WorkerCount,
		"retry_attempts": p.config.RetryAttempts,
	}
}
