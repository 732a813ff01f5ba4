package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_WriterAndHelpers(t *testing.T) {
	require.NoError(t, Close())
	t.Cleanup(func() { _ = Close() })

	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: LevelDebug, Writer: &buf, Format: "json"}))

	WithDatabase(7, "sales").Info("opened")
	WithObject("area", 12, "A1").Debug("dropped")

	out := buf.String()
	assert.Contains(t, out, `"database_id":7`)
	assert.Contains(t, out, `"database":"sales"`)
	assert.Contains(t, out, `"object_id":12`)
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestInit_Twice(t *testing.T) {
	require.NoError(t, Close())
	t.Cleanup(func() { _ = Close() })

	var buf bytes.Buffer
	require.NoError(t, Init(Config{Writer: &buf}))
	assert.Error(t, Init(Config{Writer: &buf}))
}

func TestLevelFiltering(t *testing.T) {
	require.NoError(t, Close())
	t.Cleanup(func() { _ = Close() })

	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: LevelWarn, Writer: &buf}))

	Info("hidden")
	Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestGetLogger_LazyDefault(t *testing.T) {
	require.NoError(t, Close())
	t.Cleanup(func() { _ = Close() })

	assert.NotNil(t, GetLogger())
}
