// Package email delivers composed digests over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/notify-digest/internal/model"
	"github.com/jwalitptl/notify-digest/pkg/circuitbreaker"
	"github.com/jwalitptl/notify-digest/pkg/logger"
)

var (
	ErrHostNotConfigured = errors.New("smtp host not configured")
	ErrFromNotConfigured = errors.New("smtp sender address not configured")
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// BCC receives a blind copy of every digest when set.
	BCC string

	RatePerSecond   float64
	Burst           int
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// Sender is the part of gomail.Dialer the dispatcher uses.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPDispatcher struct {
	cfg     Config
	sender  Sender
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	logger  *logger.Logger
}

func NewSMTPDispatcher(cfg Config, log *logger.Logger) *SMTPDispatcher {
	return NewDispatcherWithSender(cfg, gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), log)
}

func NewDispatcherWithSender(cfg Config, sender Sender, log *logger.Logger) *SMTPDispatcher {
	if log == nil {
		log = logger.Nop()
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	return &SMTPDispatcher{
		cfg:     cfg,
		sender:  sender,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "smtp",
			MaxRequests: cfg.BreakerFailures,
			Interval:    time.Minute,
			Timeout:     cfg.BreakerTimeout,
		}),
		logger: log,
	}
}

// Ready fails when the transport has no host or sender address.
func (d *SMTPDispatcher) Ready() error {
	if d.cfg.Host == "" {
		return ErrHostNotConfigured
	}
	if d.cfg.From == "" {
		return ErrFromNotConfigured
	}
	return nil
}

func (d *SMTPDispatcher) Dispatch(ctx context.Context, msg *model.Message) error {
	if err := d.Ready(); err != nil {
		return err
	}
	if msg == nil || msg.To == "" {
		return fmt.Errorf("message has no recipient")
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send throttled: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", d.cfg.From)
	m.SetHeader("To", msg.To)
	if d.cfg.BCC != "" {
		m.SetHeader("Bcc", d.cfg.BCC)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	err := d.breaker.Execute(func() error {
		return d.sender.DialAndSend(m)
	})
	if err != nil {
		d.logger.Warn("SMTP send failed", "to", msg.To, "breaker", string(d.breaker.State()), "error", err.Error())
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}
