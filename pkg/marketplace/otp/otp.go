// Package otp issues and verifies one-time codes delivered by email.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

const (
	DefaultTTL         = 10 * time.Minute
	DefaultCodeLength  = 6
	DefaultMaxAttempts = 5
)

// ErrNotFound is returned by a Store for unknown or expired code ids.
var ErrNotFound = errors.New("code not found")

// Entry is one issued code. Only a hash of the code is stored.
type Entry struct {
	Contact   string    `json:"contact"`
	CodeHash  string    `json:"code_hash"`
	Attempts  int       `json:"attempts"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store keeps issued codes until they expire. Implementations must drop
// entries after ttl.
//
// Attempt increments the attempt counter of an entry and returns the new
// count. The increment must be atomic so concurrent verifications of one
// code each consume an attempt.
type Store interface {
	Put(ctx context.Context, id string, e Entry, ttl time.Duration) error
	Get(ctx context.Context, id string) (Entry, error)
	Attempt(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}

type Service struct {
	store       Store
	notifier    marketplace.Notifier
	logger      *slog.Logger
	ttl         time.Duration
	length      int
	maxAttempts int
	now         func() time.Time
	validate    *validator.Validate
}

type Option func(*Service)

func WithTTL(d time.Duration) Option {
	return func(s *Service) { s.ttl = d }
}

func WithCodeLength(n int) Option {
	return func(s *Service) { s.length = n }
}

func WithMaxAttempts(n int) Option {
	return func(s *Service) { s.maxAttempts = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a code service backed by store that delivers codes through
// notifier.
func New(store Store, notifier marketplace.Notifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("otp store is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	s := &Service{
		store:       store,
		notifier:    notifier,
		logger:      slog.Default(),
		ttl:         DefaultTTL,
		length:      DefaultCodeLength,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		validate:    validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.length < 4 || s.length > 10 {
		return nil, fmt.Errorf("code length must be between 4 and 10, got %d", s.length)
	}
	return s, nil
}

// Send issues a code for contact, emails it and returns the code id the
// caller verifies against. A failed delivery discards the code.
func (s *Service) Send(ctx context.Context, contact string) (string, error) {
	contact = strings.ToLower(strings.TrimSpace(contact))
	if err := s.validate.Var(contact, "required,email"); err != nil {
		return "", marketplace.NewValidationError("contact", "must be a valid email address")
	}

	code, err := generateCode(s.length)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	entry := Entry{
		Contact:   contact,
		CodeHash:  hashCode(id, code),
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.store.Put(ctx, id, entry, s.ttl); err != nil {
		return "", fmt.Errorf("failed to store code: %w", err)
	}

	subject := "Your verification code"
	body := fmt.Sprintf("<p>Your verification code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>",
		code, int(s.ttl.Minutes()))
	if err := s.notifier.SendEmail(ctx, contact, subject, body); err != nil {
		_ = s.store.Delete(context.WithoutCancel(ctx), id)
		s.logger.Warn("failed to deliver verification code", "code_id", id, "err", err)
		return "", fmt.Errorf("%w: %w", marketplace.ErrDeliveryFailed, err)
	}

	s.logger.Info("verification code sent", "code_id", id)
	return id, nil
}

// Verify reports whether code matches the code issued under id. A matching
// code is consumed. Unknown or expired ids and exhausted codes verify false.
// Every call counts against the attempt limit, including the one that
// succeeds.
func (s *Service) Verify(ctx context.Context, id, code string) (bool, error) {
	entry, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load code: %w", err)
	}
	if !s.now().Before(entry.ExpiresAt) {
		_ = s.store.Delete(ctx, id)
		return false, nil
	}

	attempts, err := s.store.Attempt(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record attempt: %w", err)
	}
	if attempts > s.maxAttempts {
		_ = s.store.Delete(ctx, id)
		return false, nil
	}

	given := hashCode(id, strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(given), []byte(entry.CodeHash)) == 1 {
		if err := s.store.Delete(ctx, id); err != nil {
			return false, fmt.Errorf("failed to consume code: %w", err)
		}
		return true, nil
	}

	if attempts >= s.maxAttempts {
		_ = s.store.Delete(ctx, id)
		s.logger.Warn("verification code exhausted", "code_id", id)
	}
	return false, nil
}

func generateCode(length int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

func hashCode(id, code string) string {
	sum := sha256.Sum256([]byte(id + ":" + code))
	return hex.EncodeToString(sum[:])
}
