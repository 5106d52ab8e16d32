package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureScheme(t *testing.T) {
	tests := map[string]string{
		"site.test":          "https://site.test",
		"  site.test/menu ":  "https://site.test/menu",
		"http://site.test":   "http://site.test",
		"HTTPS://site.test/": "HTTPS://site.test/",
		"":                   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, EnsureScheme(in), in)
	}
}

func TestViewportByName(t *testing.T) {
	vp, ok := ViewportByName("Mobile")
	assert.True(t, ok)
	assert.Equal(t, 390, vp.Width)
	assert.True(t, vp.Mobile)

	vp, ok = ViewportByName("")
	assert.True(t, ok)
	assert.Equal(t, Desktop, vp)

	_, ok = ViewportByName("tablet")
	assert.False(t, ok)
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv(headlessEnv, "yes")
	assert.True(t, HeadlessFromEnv(false))
	t.Setenv(headlessEnv, "off")
	assert.False(t, HeadlessFromEnv(true))
	t.Setenv(headlessEnv, "maybe")
	assert.True(t, HeadlessFromEnv(true))
}

func TestCookieSelectorsUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range cookieSelectors {
		assert.False(t, seen[s], s)
		seen[s] = true
	}
}
