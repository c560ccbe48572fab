package objectkey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"
)

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates an object key for an attachment of field in folder
	GenerateKey(folder, field, filename string) string
}

// TimestampGenerator produces keys of the form
// {folder}/{field}-{unixmillis}-{random}{ext}.
type TimestampGenerator struct {
	Now        func() time.Time
	RandomSize int
}

func NewTimestampGenerator() *TimestampGenerator {
	return &TimestampGenerator{Now: time.Now, RandomSize: 6}
}

func (g *TimestampGenerator) GenerateKey(folder, field, filename string) string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	size := g.RandomSize
	if size <= 0 {
		size = 6
	}

	name := fmt.Sprintf("%s-%d-%s%s",
		sanitizePathComponent(field), now().UnixMilli(), randomHex(size), Extension(filename))

	folder = strings.Trim(sanitizeFolder(folder), "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// TenantAwareGenerator adds tenant isolation to another generator
// Structure: tenants/{tenant}/{base key}
type TenantAwareGenerator struct {
	BaseGenerator Generator
	Tenant        string
}

func NewTenantAwareGenerator(tenant string) *TenantAwareGenerator {
	return &TenantAwareGenerator{
		BaseGenerator: NewTimestampGenerator(),
		Tenant:        tenant,
	}
}

func (g *TenantAwareGenerator) GenerateKey(folder, field, filename string) string {
	tenant := "default"
	if g.Tenant != "" {
		tenant = sanitizePathComponent(g.Tenant)
	}
	return fmt.Sprintf("tenants/%s/%s", tenant, g.BaseGenerator.GenerateKey(folder, field, filename))
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(folder, field, filename string) string
}

func NewCustomFuncGenerator(fn func(folder, field, filename string) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{GenerateFunc: fn}
}

func (g *CustomFuncGenerator) GenerateKey(folder, field, filename string) string {
	return g.GenerateFunc(folder, field, filename)
}

// Extension returns the lower-cased extension of filename including the
// dot, or "" when the name has none or the extension is not a plain token.
func Extension(filename string) string {
	ext := strings.ToLower(path.Ext(sanitizeFilename(filename)))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

func randomHex(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(buf)[:n]
}

func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(filename)
}

func sanitizePathComponent(component string) string {
	return strings.ToLower(sanitizeFilename(component))
}

func sanitizeFolder(folder string) string {
	parts := strings.Split(folder, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		kept = append(kept, sanitizePathComponent(p))
	}
	return strings.Join(kept, "/")
}

// NewRecommendedGenerator returns the generator used when none is configured
func NewRecommendedGenerator() Generator {
	return NewTimestampGenerator()
}
