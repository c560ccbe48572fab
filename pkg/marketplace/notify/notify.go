// Package notify delivers marketplace emails.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

// DefaultSMTPTimeout bounds the SMTP dial and conversation.
const DefaultSMTPTimeout = 10 * time.Second

// SMTPConfig holds the SMTP server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLSPolicy is "mandatory", "opportunistic" (default) or "none".
	TLSPolicy string
	Timeout   time.Duration
}

// SMTPNotifier sends HTML emails through an SMTP relay.
type SMTPNotifier struct {
	config SMTPConfig
	policy mail.TLSPolicy
}

var _ marketplace.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier validates config and returns a notifier. No connection is
// opened until the first email is sent.
func NewSMTPNotifier(config SMTPConfig) (*SMTPNotifier, error) {
	if strings.TrimSpace(config.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(config.From) == "" {
		return nil, errors.New("smtp from address is required")
	}
	if config.Port == 0 {
		config.Port = 587
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultSMTPTimeout
	}

	var policy mail.TLSPolicy
	switch strings.ToLower(config.TLSPolicy) {
	case "", "opportunistic":
		policy = mail.TLSOpportunistic
	case "mandatory":
		policy = mail.TLSMandatory
	case "none":
		policy = mail.NoTLS
	default:
		return nil, fmt.Errorf("unsupported smtp tls policy: %s", config.TLSPolicy)
	}

	return &SMTPNotifier{config: config, policy: policy}, nil
}

// SendEmail delivers one HTML email.
func (n *SMTPNotifier) SendEmail(ctx context.Context, to, subject, html string) error {
	msg, err := n.message(to, subject, html)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(n.config.Port),
		mail.WithTimeout(n.config.Timeout),
		mail.WithTLSPolicy(n.policy),
	}
	if n.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.config.Username),
			mail.WithPassword(n.config.Password),
		)
	}

	client, err := mail.NewClient(n.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", marketplace.ErrDeliveryFailed, err)
	}
	return nil
}

func (n *SMTPNotifier) message(to, subject, html string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.config.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, html)
	return msg, nil
}

// LogNotifier writes emails to a logger instead of sending them. It is the
// development stand-in when no SMTP relay is configured.
type LogNotifier struct {
	logger *slog.Logger
}

var _ marketplace.Notifier = (*LogNotifier)(nil)

// NewLogNotifier returns a notifier that logs at info level.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendEmail(ctx context.Context, to, subject, html string) error {
	n.logger.InfoContext(ctx, "email", "to", to, "subject", subject, "bytes", len(html))
	return nil
}
