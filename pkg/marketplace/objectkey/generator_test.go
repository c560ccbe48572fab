package objectkey

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedNow() time.Time {
	return time.UnixMilli(1700000000123)
}

func TestTimestampGenerator(t *testing.T) {
	gen := &TimestampGenerator{Now: fixedNow, RandomSize: 6}

	tests := []struct {
		name     string
		folder   string
		field    string
		filename string
		pattern  string
	}{
		{
			name:     "image with extension",
			folder:   "awards",
			field:    "logo",
			filename: "Company Logo.PNG",
			pattern:  `^awards/logo-1700000000123-[0-9a-f]{6}\.png$`,
		},
		{
			name:     "nested folder",
			folder:   "press/packs",
			field:    "cover",
			filename: "cover.jpeg",
			pattern:  `^press/packs/cover-1700000000123-[0-9a-f]{6}\.jpeg$`,
		},
		{
			name:     "no extension",
			folder:   "events",
			field:    "banner",
			filename: "banner",
			pattern:  `^events/banner-1700000000123-[0-9a-f]{6}$`,
		},
		{
			name:     "traversal segments removed",
			folder:   "../awards/./",
			field:    "logo",
			filename: "a.jpg",
			pattern:  `^awards/logo-1700000000123-[0-9a-f]{6}\.jpg$`,
		},
		{
			name:     "empty folder",
			folder:   "",
			field:    "file",
			filename: "doc.pdf",
			pattern:  `^file-1700000000123-[0-9a-f]{6}\.pdf$`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := gen.GenerateKey(tt.folder, tt.field, tt.filename)
			assert.Regexp(t, regexp.MustCompile(tt.pattern), key)
		})
	}
}

func TestTimestampGeneratorUnique(t *testing.T) {
	gen := &TimestampGenerator{Now: fixedNow}
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key := gen.GenerateKey("awards", "logo", "a.png")
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestTenantAwareGenerator(t *testing.T) {
	gen := &TenantAwareGenerator{
		BaseGenerator: &TimestampGenerator{Now: fixedNow},
		Tenant:        "Acme Corp",
	}
	key := gen.GenerateKey("awards", "logo", "a.png")
	assert.True(t, strings.HasPrefix(key, "tenants/acme_corp/awards/logo-"), key)

	gen.Tenant = ""
	key = gen.GenerateKey("awards", "logo", "a.png")
	assert.True(t, strings.HasPrefix(key, "tenants/default/"), key)
}

func TestCustomFuncGenerator(t *testing.T) {
	gen := NewCustomFuncGenerator(func(folder, field, filename string) string {
		return folder + ":" + field + ":" + filename
	})
	assert.Equal(t, "a:b:c", gen.GenerateKey("a", "b", "c"))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".png", Extension("x.PNG"))
	assert.Equal(t, ".pdf", Extension("dir/report.pdf"))
	assert.Equal(t, "", Extension("noext"))
	assert.Equal(t, "", Extension("weird.p$g"))
	assert.Equal(t, "", Extension("trailing."))
}
