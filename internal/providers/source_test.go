package providers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const oneProvider = `
providers:
  - id: ppeur
    protocol: pragmatic
    currency: EUR
    enabled: true
    credentials: {endpoint: "https://pp.example.test", agent_id: a, secret: s}
`

const twoProviders = oneProvider + `
  - id: gspeur
    protocol: gamesolution
    currency: EUR
    enabled: true
    credentials: {endpoint: "https://gs.example.test", agent_id: a, secret: s}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestFileSource_Load(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "providers.yaml")

	reg := New(knownProtocols)
	src := NewFileSource(path, reg)

	require.Error(t, src.Load(), "missing file")

	writeFile(t, path, oneProvider+`
  - id: broken
    protocol: pragmatic
    currency: EUR
`)
	require.NoError(t, src.Load(), "configuration errors drop the provider only")

	_, ok := reg.Get("ppeur")
	assert.True(t, ok)

	_, ok = reg.Get("broken")
	assert.False(t, ok)

	writeFile(t, path, "providers: [")
	require.Error(t, src.Load())

	_, ok = reg.Get("ppeur")
	assert.True(t, ok, "a bad file keeps the previous catalogue")
}

func TestFileSource_WatchReloads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "providers.yaml")
	writeFile(t, path, oneProvider)

	reg := New(knownProtocols)
	src := NewFileSource(path, reg)
	src.debounce = 10 * time.Millisecond

	require.NoError(t, src.Load())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, src.Watch(ctx))

	writeFile(t, path, twoProviders)

	require.Eventually(t, func() bool {
		_, ok := reg.Get("gspeur")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}
