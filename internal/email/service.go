package email

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/notification-ledger/internal/config"
	"github.com/jwalitptl/notification-ledger/pkg/circuitbreaker"
	"github.com/jwalitptl/notification-ledger/pkg/logger"
)

// ErrNoRecipient is returned for a message without a To address.
var ErrNoRecipient = errors.New("message has no recipient")

// Message is a composed mail ready for a transport.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Service hands messages to a mail transport. A nil error means the
// transport accepted the message.
type Service interface {
	Send(ctx context.Context, msg Message) error
}

type smtpService struct {
	dialer  *gomail.Dialer
	from    string
	breaker *circuitbreaker.CircuitBreaker
}

// NewSMTPService sends through cfg's SMTP relay. breaker may be nil.
func NewSMTPService(cfg config.SMTPConfig, breaker *circuitbreaker.CircuitBreaker) Service {
	return &smtpService{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		breaker: breaker,
	}
}

func (s *smtpService) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.from, "Notification Ledger"))
	if msg.ToName != "" {
		m.SetHeader("To", m.FormatAddress(msg.To, msg.ToName))
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	send := func() error { return s.dialer.DialAndSend(m) }
	if s.breaker != nil {
		if err := s.breaker.Execute(send); err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	}
	if err := send(); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

type logService struct {
	log *logger.Logger
}

// NewLogService only logs messages. Used when no SMTP host is configured.
func NewLogService(log *logger.Logger) Service {
	return &logService{log: log}
}

func (s *logService) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	s.log.Info("mail delivered to log", "to", msg.To, "subject", msg.Subject)
	return nil
}

// New picks the transport for cfg. Without an SMTP host mails only go to the
// log. SMTP sends run behind a circuit breaker.
func New(cfg config.SMTPConfig, breaker circuitbreaker.Settings, log *logger.Logger) Service {
	if cfg.Host == "" {
		log.Warn("smtp host not configured, mails are only logged")
		return NewLogService(log)
	}
	if breaker.Name == "" {
		breaker.Name = "smtp"
	}
	return NewSMTPService(cfg, circuitbreaker.NewCircuitBreaker(breaker))
}
