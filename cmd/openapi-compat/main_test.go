package main

import (
	"os"
	"path/filepath"
	"testing"

	"carkey/docs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
swagger: "2.0"
paths:
  /boards:
    parameters:
      - name: page
        in: query
    get:
      responses:
        "200": {description: ok}
        "401": {description: unauthorized}
    post:
      responses:
        "201": {description: created}
  /boards/{id}/like:
    post:
      responses:
        "200": {description: ok}
`

func TestParseSurface_SkipsNonOperations(t *testing.T) {
	s, err := parseSurface([]byte(baseYAML))
	require.NoError(t, err)
	require.Contains(t, s, "/boards")
	assert.Len(t, s["/boards"], 2)
	assert.Contains(t, s["/boards"]["get"], "401")
}

func TestParseSurface_MissingPaths(t *testing.T) {
	_, err := parseSurface([]byte(`swagger: "2.0"`))
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	base, err := parseSurface([]byte(baseYAML))
	require.NoError(t, err)

	t.Run("identical", func(t *testing.T) {
		assert.Empty(t, compare(base, base))
	})

	t.Run("removals reported", func(t *testing.T) {
		rev, err := parseSurface([]byte(`
paths:
  /boards:
    get:
      responses:
        "200": {description: ok}
`))
		require.NoError(t, err)
		assert.Equal(t, []string{
			"removed operation: POST /boards",
			"removed path: /boards/{id}/like",
			"removed response code: GET /boards -> 401",
		}, compare(base, rev))
	})

	t.Run("additions allowed", func(t *testing.T) {
		rev, err := parseSurface([]byte(baseYAML + `
  /notices:
    get:
      responses:
        "200": {description: ok}
`))
		require.NoError(t, err)
		assert.Empty(t, compare(base, rev))
	})
}

func TestWriteBaseline_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swagger.yaml")
	require.NoError(t, writeBaseline(path))

	written, err := loadFile(path)
	require.NoError(t, err)
	builtin, err := parseSurface([]byte(docs.SwaggerInfo.ReadDoc()))
	require.NoError(t, err)

	assert.NotEmpty(t, written)
	assert.Empty(t, compare(written, builtin))
	assert.Empty(t, compare(builtin, written))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "{\"")
}
