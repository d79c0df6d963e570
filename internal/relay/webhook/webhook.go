// Package webhook mediates delivery of posted messages to HTTP endpoints,
// behind a circuit breaker and bounded retry, and exposes a mqueue.HandlerFunc
// so it can be wired straight onto a queue.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"go.relayqueue.dev/internal/common/metrics"
	"go.relayqueue.dev/internal/mqueue"
)

// Result classifies how a delivery attempt concluded.
type Result int

const (
	ResultSuccess Result = iota
	ResultErrorConfig
	ResultErrorConnection
	ResultErrorProcess
)

// Delivery is the Body.Body1 payload a handler installed via Handler
// expects: a single webhook call to make.
type Delivery struct {
	ID             string
	TargetURL      string
	Payload        string
	AuthToken      string
	Headers        map[string]string
	TimeoutSeconds int
}

// Outcome is delivered back through Body.Body2, which the caller supplies
// as a `chan<- *Outcome` (or left nil to fire-and-forget).
type Outcome struct {
	Result      Result
	StatusCode  int
	ResponseAck *bool
	Delay       *time.Duration
	Err         error
}

// Config configures a Mediator.
type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration

	CircuitBreakerEnabled     bool
	CircuitBreakerRequests    uint32
	CircuitBreakerInterval    time.Duration
	CircuitBreakerRatio       float64
	CircuitBreakerTimeout     time.Duration
	CircuitBreakerMinRequests uint32

	// RatePerSecond caps outbound delivery attempts across all targets; 0
	// disables limiting.
	RatePerSecond float64
	RateBurst     int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:                   30 * time.Second,
		MaxRetries:                3,
		BaseBackoff:               time.Second,
		CircuitBreakerEnabled:     true,
		CircuitBreakerRequests:    10,
		CircuitBreakerInterval:    60 * time.Second,
		CircuitBreakerRatio:       0.5,
		CircuitBreakerTimeout:     5 * time.Second,
		CircuitBreakerMinRequests: 10,
		RatePerSecond:             50,
		RateBurst:                 50,
	}
}

// Mediator delivers Deliveries over HTTP with retry and an optional circuit
// breaker.
type Mediator struct {
	client         *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	limiter        *rate.Limiter
	maxRetries     int
	baseBackoff    time.Duration
}

// New builds a Mediator from cfg (DefaultConfig() if zero-valued).
func New(cfg Config) *Mediator {
	if cfg.MaxRetries == 0 {
		cfg = DefaultConfig()
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	m := &Mediator{client: client, maxRetries: cfg.MaxRetries, baseBackoff: cfg.BaseBackoff}

	if cfg.RatePerSecond > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst)
	}

	if cfg.CircuitBreakerEnabled {
		m.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "webhook-mediator",
			MaxRequests: cfg.CircuitBreakerRequests,
			Interval:    cfg.CircuitBreakerInterval,
			Timeout:     cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.CircuitBreakerMinRequests {
					return false
				}
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= cfg.CircuitBreakerRatio
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Info().Str("name", name).Str("from", from.String()).Str("to", to.String()).
					Msg("webhook circuit breaker state changed")

				var stateValue float64
				switch to {
				case gobreaker.StateClosed:
					stateValue = float64(metrics.CircuitBreakerClosed)
				case gobreaker.StateOpen:
					stateValue = float64(metrics.CircuitBreakerOpen)
					metrics.WebhookCircuitBreakerTrips.WithLabelValues(name).Inc()
				case gobreaker.StateHalfOpen:
					stateValue = float64(metrics.CircuitBreakerHalfOpen)
				}
				metrics.WebhookCircuitBreakerState.WithLabelValues(name).Set(stateValue)
			},
		})
	}

	return m
}

// Deliver runs d through circuit breaking and retry.
func (m *Mediator) Deliver(d *Delivery) *Outcome {
	if d == nil || d.TargetURL == "" {
		return &Outcome{Result: ResultErrorConfig, Err: errors.New("missing target url")}
	}

	if m.circuitBreaker == nil {
		return m.deliverWithRetry(d)
	}

	result, err := m.circuitBreaker.Execute(func() (interface{}, error) {
		return m.deliverWithRetry(d), nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn().Str("id", d.ID).Str("target", d.TargetURL).Msg("webhook circuit breaker open")
			return &Outcome{Result: ResultErrorConnection, Err: err}
		}
	}
	if outcome, ok := result.(*Outcome); ok {
		return outcome
	}
	return &Outcome{Result: ResultErrorProcess, Err: err}
}

func (m *Mediator) deliverWithRetry(d *Delivery) *Outcome {
	var last *Outcome
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		outcome := m.deliverOnce(d, attempt)
		last = outcome

		if outcome.Result == ResultSuccess || outcome.Result == ResultErrorConfig || !retryable(outcome) {
			return outcome
		}
		if attempt < m.maxRetries {
			backoff := time.Duration(attempt) * m.baseBackoff
			log.Info().Str("id", d.ID).Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying webhook delivery")
			time.Sleep(backoff)
		}
	}
	return last
}

func (m *Mediator) deliverOnce(d *Delivery, attempt int) *Outcome {
	timeout := 30 * time.Second
	if d.TimeoutSeconds > 0 {
		timeout = time.Duration(d.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return &Outcome{Result: ResultErrorConnection, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.TargetURL, strings.NewReader(d.Payload))
	if err != nil {
		return &Outcome{Result: ResultErrorConfig, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if d.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.AuthToken)
	}
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	duration := time.Since(start)
	metrics.WebhookHTTPDuration.WithLabelValues(d.TargetURL).Observe(duration.Seconds())

	if err != nil {
		metrics.WebhookHTTPRequests.WithLabelValues("error", d.TargetURL).Inc()
		return handleError(err)
	}
	defer resp.Body.Close()

	metrics.WebhookHTTPRequests.WithLabelValues(strconv.Itoa(resp.StatusCode), d.TargetURL).Inc()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	log.Debug().Str("id", d.ID).Int("statusCode", resp.StatusCode).Dur("duration", duration).Int("attempt", attempt).
		Msg("webhook response received")

	return handleResponse(resp.StatusCode, body)
}

func handleError(err error) *Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Outcome{Result: ResultErrorConnection, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Outcome{Result: ResultErrorProcess, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Outcome{Result: ResultErrorConnection, Err: err}
	}
	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "no such host") {
		return &Outcome{Result: ResultErrorConnection, Err: err}
	}
	return &Outcome{Result: ResultErrorProcess, Err: err}
}

func handleResponse(statusCode int, body []byte) *Outcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		ack := parseAck(body)
		if ack != nil && !*ack {
			return &Outcome{Result: ResultErrorProcess, StatusCode: statusCode, ResponseAck: ack, Delay: parseDelay(body)}
		}
		return &Outcome{Result: ResultSuccess, StatusCode: statusCode}
	case statusCode == 429:
		delay := parseDelay(body)
		if delay == nil {
			d := 5 * time.Second
			delay = &d
		}
		return &Outcome{Result: ResultErrorProcess, StatusCode: statusCode, Delay: delay}
	case statusCode >= 400 && statusCode < 500:
		return &Outcome{Result: ResultErrorConfig, StatusCode: statusCode}
	default:
		return &Outcome{Result: ResultErrorProcess, StatusCode: statusCode}
	}
}

func parseAck(body []byte) *bool {
	if len(body) == 0 {
		return nil
	}
	var resp struct {
		Ack *bool `json:"ack"`
	}
	if json.Unmarshal(body, &resp) != nil {
		return nil
	}
	return resp.Ack
}

func parseDelay(body []byte) *time.Duration {
	if len(body) == 0 {
		return nil
	}
	var resp struct {
		DelaySeconds *int `json:"delaySeconds"`
	}
	if json.Unmarshal(body, &resp) != nil || resp.DelaySeconds == nil || *resp.DelaySeconds <= 0 {
		return nil
	}
	d := time.Duration(*resp.DelaySeconds) * time.Second
	return &d
}

func retryable(o *Outcome) bool {
	return o.Result == ResultErrorConnection || o.Result == ResultErrorProcess
}

// Handler builds a mqueue.HandlerFunc that delivers the *Delivery in
// Body.Body1 and, if Body.Body2 is a `chan<- *Outcome`, sends the Outcome
// back on it (non-blocking best-effort; a nil or full channel just drops
// it rather than stalling the queue's run-loop).
func Handler(m *Mediator) mqueue.HandlerFunc {
	return func(_ mqueue.PostID, body *mqueue.Body) {
		d, ok := body.Body1.(*Delivery)
		if !ok {
			log.Warn().Msg("webhook handler: Body1 is not a *Delivery")
			return
		}
		outcome := m.Deliver(d)
		if ch, ok := body.Body2.(chan<- *Outcome); ok {
			select {
			case ch <- outcome:
			default:
			}
		}
	}
}
