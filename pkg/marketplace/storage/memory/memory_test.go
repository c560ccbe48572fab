package memory

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

func TestBackendUploadDownload(t *testing.T) {
	ctx := context.Background()
	b := New()

	err := b.Upload(ctx, strings.NewReader("hello"), marketplace.UploadParams{ObjectKey: "awards/logo.png", MimeType: "image/png"})
	require.NoError(t, err)

	rc, err := b.Download(ctx, "awards/logo.png")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	mimeType, ok := b.MimeType("awards/logo.png")
	assert.True(t, ok)
	assert.Equal(t, "image/png", mimeType)
}

func TestBackendDefaultMimeType(t *testing.T) {
	b := New()
	require.NoError(t, b.Upload(context.Background(), strings.NewReader("x"), marketplace.UploadParams{ObjectKey: "k"}))
	mimeType, _ := b.MimeType("k")
	assert.Equal(t, "application/octet-stream", mimeType)
}

func TestBackendDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Upload(ctx, strings.NewReader("x"), marketplace.UploadParams{ObjectKey: "k"}))

	require.NoError(t, b.Delete(ctx, "k"))
	require.NoError(t, b.Delete(ctx, "k"))
	assert.False(t, b.Exists("k"))

	_, err := b.Download(ctx, "k")
	assert.Error(t, err)
}

func TestBackendBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, New().BaseURL())
	assert.Equal(t, "https://cdn.test", NewWithBaseURL("https://cdn.test").BaseURL())
}
