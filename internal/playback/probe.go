package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"live-playback-engine/internal/platform/metrics"
)

// ErrProbeCancelled is returned by Probe.Run when its context is cancelled
// before readiness is declared.
var ErrProbeCancelled = errors.New("manifest probe cancelled")

// Probe repeatedly checks whether a candidate manifest URL is currently
// fetchable. It declares readiness only after a fixed number of
// consecutive successes, which debounces availability flaps from an
// eventually-consistent segment store, then waits a settle delay to absorb
// last-moment write latency.
//
// Every failure mode (non-2xx, transport error, bad URL) funnels into
// the same failure branch: the success counter resets to 0 and the next
// check is scheduled. The probe retries forever; giving up is the
// caller's (cancellation) decision.
type Probe struct {
	client   *http.Client
	interval time.Duration
	settle   time.Duration
	required int
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewProbe returns a probe with the given cadence. required is the number
// of consecutive successes needed before readiness; values below 1 are
// raised to 1. Metrics may be nil.
func NewProbe(client *http.Client, interval, settle time.Duration, required int, log *slog.Logger, met *metrics.Metrics) *Probe {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if required < 1 {
		required = 1
	}
	return &Probe{
		client:   client,
		interval: interval,
		settle:   settle,
		required: required,
		log:      log,
		metrics:  met,
	}
}

// Run probes manifestURL once per interval until it has seen the required
// number of consecutive successes, then sleeps the settle delay and
// returns nil. onProgress is invoked after every check with the current
// consecutive-success count (0 after any failure); it may be nil.
//
// Cancelling ctx guarantees no further check fires and no timer is left
// dangling; Run then returns ErrProbeCancelled.
func (p *Probe) Run(ctx context.Context, manifestURL string, onProgress func(successes int)) error {
	successes := 0
	for {
		if err := ctx.Err(); err != nil {
			return ErrProbeCancelled
		}

		if err := p.checkOnce(ctx, manifestURL); err != nil {
			successes = 0
			if p.metrics != nil {
				p.metrics.IncProbeFailures()
			}
			p.log.Debug("manifest not ready", slog.String("url", manifestURL), slog.String("error", err.Error()))
		} else {
			successes++
		}
		if p.metrics != nil {
			p.metrics.IncProbeAttempts()
		}
		if onProgress != nil {
			onProgress(successes)
		}

		if successes >= p.required {
			if !sleepCtx(ctx, p.settle) {
				return ErrProbeCancelled
			}
			return nil
		}
		if !sleepCtx(ctx, p.interval) {
			return ErrProbeCancelled
		}
	}
}

// checkOnce performs one existence check: HEAD with a cache-busting query
// parameter, falling back to a single GET when the server rejects HEAD
// outright (405/501). Any non-2xx response or transport error is a failure.
func (p *Probe) checkOnce(ctx context.Context, manifestURL string) error {
	target := withCacheBust(manifestURL, "probe")

	status, err := p.request(ctx, http.MethodHead, target)
	if err != nil {
		return err
	}
	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		status, err = p.request(ctx, http.MethodGet, target)
		if err != nil {
			return err
		}
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("manifest probe: status %d", status)
	}
	return nil
}

func (p *Probe) request(ctx context.Context, method, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, fmt.Errorf("manifest probe: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("manifest probe: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// sleepCtx waits for d or until ctx is cancelled. It reports whether the
// full duration elapsed. The timer is always stopped before returning.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
