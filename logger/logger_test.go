package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithFile(t *testing.T) {
	dir := t.TempDir()

	l, closer, err := New("warn", "json", dir)
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())

	l.Warn().Str("warden", "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23").Msg("relay pass done")
	l.Info().Msg("filtered out")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "log_"+time.Now().Format("2006-01-02")+".txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "relay pass done")
	assert.NotContains(t, string(data), "filtered out")
}

func TestNewInvalid(t *testing.T) {
	_, closer, err := New("loud", "json", "")
	assert.Error(t, err)
	assert.NotNil(t, closer)

	_, _, err = New("info", "xml", "")
	assert.Error(t, err)

	_, _, err = New("", "json", "")
	assert.Error(t, err)
}
