package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_Levels(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, New(false).GetLevel())
	assert.Equal(t, zerolog.DebugLevel, New(true).GetLevel())
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("bank", "ANZ").Msg("import started")

	assert.Contains(t, buf.String(), "import started")
	assert.Contains(t, buf.String(), "ANZ")
}

func TestNop(t *testing.T) {
	assert.Equal(t, zerolog.Disabled, Nop().GetLevel())
}
