package otp

import (
	"context"
	"errors"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

var codePattern = regexp.MustCompile(`<strong>(\d+)</strong>`)

type captureNotifier struct {
	mu   sync.Mutex
	to   []string
	body []string
	err  error
}

func (c *captureNotifier) SendEmail(ctx context.Context, to, subject, html string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.to = append(c.to, to)
	c.body = append(c.body, html)
	return nil
}

func (c *captureNotifier) lastCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.body)
	m := codePattern.FindStringSubmatch(c.body[len(c.body)-1])
	require.Len(t, m, 2)
	return m[1]
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newService(t *testing.T, store Store, opts ...Option) (*Service, *captureNotifier, *clock) {
	t.Helper()
	n := &captureNotifier{}
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := New(store, n, append([]Option{WithClock(c.Now)}, opts...)...)
	require.NoError(t, err)
	return svc, n, c
}

func TestNew(t *testing.T) {
	_, err := New(nil, &captureNotifier{})
	assert.Error(t, err)

	_, err = New(NewMemoryStore(0, 0), nil)
	assert.Error(t, err)

	_, err = New(NewMemoryStore(0, 0), &captureNotifier{}, WithCodeLength(2))
	assert.ErrorContains(t, err, "code length")
}

func TestSendAndVerify(t *testing.T) {
	ctx := context.Background()
	svc, n, _ := newService(t, NewMemoryStore(10, time.Hour))

	id, err := svc.Send(ctx, "  Alice@Example.com ")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, []string{"alice@example.com"}, n.to)

	code := n.lastCode(t)
	assert.Len(t, code, DefaultCodeLength)

	ok, err := svc.Verify(ctx, id, code)
	require.NoError(t, err)
	assert.True(t, ok)

	// codes are single use
	ok, err = svc.Verify(ctx, id, code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSend_InvalidContact(t *testing.T) {
	svc, n, _ := newService(t, NewMemoryStore(10, time.Hour))

	_, err := svc.Send(context.Background(), "not-an-email")
	var verr *marketplace.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "contact")
	assert.Empty(t, n.to)
}

func TestSend_DeliveryFailure(t *testing.T) {
	store := NewMemoryStore(10, time.Hour)
	svc, n, _ := newService(t, store)
	n.err = errors.New("connection refused")

	_, err := svc.Send(context.Background(), "alice@example.com")
	assert.ErrorIs(t, err, marketplace.ErrDeliveryFailed)
	assert.Equal(t, 0, store.Len())
}

func TestVerify_Expired(t *testing.T) {
	ctx := context.Background()
	svc, n, c := newService(t, NewMemoryStore(10, time.Hour), WithTTL(5*time.Minute))

	id, err := svc.Send(ctx, "alice@example.com")
	require.NoError(t, err)
	code := n.lastCode(t)

	c.now = c.now.Add(5 * time.Minute)
	ok, err := svc.Verify(ctx, id, code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_MaxAttempts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Hour)
	svc, n, _ := newService(t, store, WithMaxAttempts(3))

	id, err := svc.Send(ctx, "alice@example.com")
	require.NoError(t, err)
	code := n.lastCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 2; i++ {
		ok, err := svc.Verify(ctx, id, wrong)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	entry, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Attempts)

	ok, err := svc.Verify(ctx, id, wrong)
	require.NoError(t, err)
	assert.False(t, ok)

	// the third miss exhausts the code, so the right code no longer works
	ok, err = svc.Verify(ctx, id, code)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestVerify_ConcurrentGuessesShareAttemptLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Hour)
	svc, n, _ := newService(t, store, WithMaxAttempts(5))

	id, err := svc.Send(ctx, "carol@example.com")
	require.NoError(t, err)
	code := n.lastCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Verify(ctx, id, wrong)
			assert.NoError(t, err)
			assert.False(t, ok)
		}()
	}
	wg.Wait()

	ok, err := svc.Verify(ctx, id, code)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_Attempt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10, time.Hour)

	_, err := s.Attempt(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "a", Entry{Contact: "a@example.com"}, time.Minute))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Attempt(ctx, "a")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	e, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 50, e.Attempts)
}

func TestVerify_UnknownID(t *testing.T) {
	svc, _, _ := newService(t, NewMemoryStore(10, time.Hour))
	ok, err := svc.Verify(context.Background(), "missing", "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode(6)
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, code)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2, time.Hour)

	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "a", Entry{Contact: "a@example.com"}, time.Minute))
	require.NoError(t, s.Put(ctx, "b", Entry{Contact: "b@example.com"}, time.Minute))
	require.NoError(t, s.Put(ctx, "c", Entry{Contact: "c@example.com"}, time.Minute))

	// size-bounded: the oldest entry was evicted
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	e, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "c@example.com", e.Contact)

	require.NoError(t, s.Delete(ctx, "c"))
	_, err = s.Get(ctx, "c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	store, err := NewRedisStoreFromURL(ctx, "redis://"+endpoint+"/0", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	expires := time.Now().Add(time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, store.Put(ctx, "a", Entry{Contact: "a@example.com", CodeHash: "h", Attempts: 1, ExpiresAt: expires}, time.Minute))
	e, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", e.Contact)
	assert.Equal(t, 1, e.Attempts)
	assert.True(t, expires.Equal(e.ExpiresAt))

	n, err := store.Attempt(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	e, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Attempts)
	assert.Equal(t, "h", e.CodeHash)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Attempt(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	// a full round trip through the service
	svc, notifier, _ := newService(t, store)
	id, err := svc.Send(ctx, "bob@example.com")
	require.NoError(t, err)
	ok, err := svc.Verify(ctx, id, notifier.lastCode(t))
	require.NoError(t, err)
	assert.True(t, ok)
}
