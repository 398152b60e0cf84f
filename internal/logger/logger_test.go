package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shitan.log")

	l, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	l.Info().Str("component", "test").Msg("hello")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestNewInvalidLevelFallsBack(t *testing.T) {
	l, err := New(Config{Level: "chatty", Console: true})
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, "info", l.Zerolog().GetLevel().String())
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shitan.log")

	l, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)

	l.Debug().Msg("too quiet")
	l.Error().Msg("loud enough")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "too quiet")
	assert.Contains(t, string(data), "loud enough")
}

func TestRedactorPatterns(t *testing.T) {
	r := NewRedactor()

	cases := map[string]string{
		"key bce-v3/ALTAK-abcdefgh/1234567890abcdef done": "key [REDACTED] done",
		"auth sk-proj-abcdefghijklmnopqrstuvwx":           "auth [REDACTED]",
		"auth sk-ant-REDACTED":         "auth [REDACTED]",
		"Authorization: Bearer bce-v3/tok/sig":            "Authorization: [REDACTED]",
		`"api_key": "super-secret-value"`:                 `"[REDACTED]`,
		"nothing sensitive here":                          "nothing sensitive here",
	}
	for in, want := range cases {
		assert.Contains(t, r.Redact(in), strings.TrimSuffix(want, `"`), "input: %s", in)
		assert.NotContains(t, r.Redact(in), "super-secret-value")
	}
}

func TestRedactingWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactor().Wrap(&buf)

	line := []byte("token sk-abcdefghijklmnopqrstuvwxyz used\n")
	n, err := w.Write(line)
	require.NoError(t, err)
	assert.Equal(t, len(line), n)
	assert.Contains(t, buf.String(), "[REDACTED]")
	assert.NotContains(t, buf.String(), "sk-abcdefghijklmnop")
}

func TestAddPattern(t *testing.T) {
	r := NewRedactor()
	require.NoError(t, r.AddPattern(`session-[0-9]+`))
	assert.Equal(t, "cookie [REDACTED]", r.Redact("cookie session-12345"))

	assert.Error(t, r.AddPattern(`([unclosed`))
}

func TestRotatingWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotate.log")

	// 1 MB limit; write just past it in two chunks.
	w, err := NewRotatingWriter(path, 1, 0, false)
	require.NoError(t, err)

	big := bytes.Repeat([]byte("x"), 1024*1024)
	_, err = w.Write(big)
	require.NoError(t, err)
	_, err = w.Write([]byte("after rotation\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.NotEmpty(t, matches, "expected a rotated file next to %s", path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after rotation\n", string(data))
}
