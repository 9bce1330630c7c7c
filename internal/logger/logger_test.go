package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should fall back to info on bad level", func(t *testing.T) {
		l, err := New(Config{Level: "bogus"})
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, "info", l.GetZerolog().GetLevel().String())
	})

	t.Run("should create log file and parent directory", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "logs", "payperai.log")

		l, err := New(Config{Level: "debug", File: path})
		require.NoError(t, err)

		l.Info().Str("session_id", "s1").Msg("turn started")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "turn started")
	})
}

func TestRedactor(t *testing.T) {
	r := NewRedactor()

	t.Run("should redact API keys", func(t *testing.T) {
		out := r.Redact("using key sk-abcdefghijklmnopqrstuvwxyz123456")
		assert.NotContains(t, out, "sk-abcdef")
		assert.Contains(t, out, "[REDACTED]")
	})

	t.Run("should redact payment proofs", func(t *testing.T) {
		out := r.Redact(`X-PAYMENT: eyJzaWduYXR1cmUiOiAiMHhhYmMifQ==`)
		assert.NotContains(t, out, "eyJzaWduYXR1cmUi")
	})

	t.Run("should redact private keys", func(t *testing.T) {
		out := r.Redact("private_key=0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
		assert.NotContains(t, out, "deadbeef")
	})

	t.Run("should leave ordinary text alone", func(t *testing.T) {
		in := "sent 2.5 MOVE to 0xabc"
		assert.Equal(t, in, r.Redact(in))
	})

	t.Run("should redact through wrapped writer", func(t *testing.T) {
		var sb strings.Builder
		w := r.Wrap(&sb)
		_, err := w.Write([]byte("password=hunter2"))
		require.NoError(t, err)
		assert.NotContains(t, sb.String(), "hunter2")
	})
}
