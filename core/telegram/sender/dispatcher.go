// Package sender runs outbound Bot API calls on a bounded worker pool with
// retries, so handlers never block on Telegram round trips they do not need
// the result of.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/sessionkeeper/core/logger"
	"github.com/m3rciful/sessionkeeper/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes outbound Telegram calls asynchronously with retries.
type Dispatcher struct {
	opts   Options
	jobs   chan job
	once   sync.Once
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	errs   atomic.Uint64

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
}

// NewDispatcher starts a dispatcher with sane defaults if options are zeroed.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	d := &Dispatcher{
		opts:   opts,
		jobs:   make(chan job, opts.QueueSize),
		timers: make(map[*time.Timer]struct{}),
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue schedules run for asynchronous execution.
// The run closure must be idempotent if retries are desired.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}

	j := job{ctx: ctx, action: action, endpoint: endpoint, run: run}
	select {
	case d.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// EnqueueAfter schedules run once delay has elapsed. Jobs still waiting
// when the dispatcher closes are dropped.
func (d *Dispatcher) EnqueueAfter(ctx context.Context, delay time.Duration, action, endpoint string, run func() error) error {
	if delay <= 0 {
		return d.Enqueue(ctx, action, endpoint, run)
	}
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}

	var timer *time.Timer
	d.timersMu.Lock()
	timer = time.AfterFunc(delay, func() {
		d.timersMu.Lock()
		delete(d.timers, timer)
		d.timersMu.Unlock()
		if err := d.Enqueue(ctx, action, endpoint, run); err != nil {
			logger.Warn(ctx, "tg.sender", "send.delayed.drop",
				slog.String("action", action),
				slog.String("err", err.Error()),
			)
		}
	})
	d.timers[timer] = struct{}{}
	d.timersMu.Unlock()
	return nil
}

// Pending reports delayed jobs that have not been queued yet.
func (d *Dispatcher) Pending() int {
	d.timersMu.Lock()
	defer d.timersMu.Unlock()
	return len(d.timers)
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops delayed jobs and workers, then waits for queued jobs to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.timersMu.Lock()
		for t := range d.timers {
			t.Stop()
			delete(d.timers, t)
		}
		d.timersMu.Unlock()

		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handleJob(j)
	}
}

func (d *Dispatcher) handleJob(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// Handler contexts end with the update; a queued send must outlive it.
	deadlineCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := deadlineCtx.Err(); err != nil {
			lastErr = err
			break
		}

		err := j.run()
		if err == nil {
			logSendSuccess(ctx, j, attempt, time.Since(start))
			return
		}
		lastErr = err
		if !netutil.ShouldRetry(err) || attempt == attempts {
			break
		}

		delay := d.opts.RetryBackoff * time.Duration(attempt)
		if wait, ok := netutil.RetryAfter(err); ok {
			delay = wait
		}
		timer := time.NewTimer(delay)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			lastErr = deadlineCtx.Err()
			attempt = attempts
		case <-timer.C:
			logger.Debug(ctx, "tg.sender", "send.retry.backoff",
				append(sendLogAttrs(ctx, j),
					slog.Int("attempt", attempt),
					slog.Duration("delay", delay),
				)...,
			)
		}
	}

	d.errs.Add(1)
	logSendFailure(ctx, j, lastErr, attempts, time.Since(start))
}

func sendLogAttrs(ctx context.Context, j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	return attrs
}

func logSendSuccess(ctx context.Context, j job, attempt int, elapsed time.Duration) {
	attrs := sendLogAttrs(ctx, j)
	level := slog.LevelDebug
	if attempt > 1 {
		attrs = append(attrs, slog.Int("attempt", attempt))
		level = slog.LevelInfo
	}
	attrs = append(attrs, slog.Duration("elapsed", logger.RoundMS(elapsed)))
	logger.Event(ctx, "tg.sender", level, "send.success", attrs...)
}

func logSendFailure(ctx context.Context, j job, err error, attempts int, elapsed time.Duration) {
	attrs := append(sendLogAttrs(ctx, j),
		slog.String("status", "fail"),
		slog.String("err", sanitizeErrorMessage(err)),
		slog.String("error_kind", classifyError(err)),
		slog.Int("attempts", attempts),
		slog.Duration("elapsed", logger.RoundMS(elapsed)),
	)
	logger.Error(ctx, "tg.sender", "send.fail", attrs...)
}

func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	status := httpStatusFromError(err)
	switch {
	case status == http.StatusTooManyRequests:
		return "flood"
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// sanitizeErrorMessage prevents leaking bot tokens embedded in request URLs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

func httpStatusFromError(err error) int {
	if _, ok := netutil.RetryAfter(err); ok {
		return http.StatusTooManyRequests
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	return 0
}
