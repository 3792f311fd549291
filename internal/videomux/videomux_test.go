package videomux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrvid/corpus/internal/platform/config"
	"github.com/qrvid/corpus/internal/platform/corerr"
	"github.com/qrvid/corpus/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

func TestAssertReady_EncoderNotFound(t *testing.T) {
	cfg := config.Default()
	cfg.EncoderBinary = "this-binary-does-not-exist-anywhere"
	cfg.ProbeBinary = "this-binary-does-not-exist-anywhere"

	m := New(testLogger(t), cfg)
	err := m.AssertReady()
	require.Error(t, err)
	assert.True(t, corerr.Is(err, corerr.KindEncoderNotFound))
}

func TestExtractFrame_VideoNotFound(t *testing.T) {
	cfg := config.Default()
	m := New(testLogger(t), cfg)

	_, err := m.ExtractFrame(nil, "/nonexistent/path/video.mp4", 0, 1)
	require.Error(t, err)
	assert.True(t, corerr.Is(err, corerr.KindVideoNotFound))
}

func TestDigitWidth(t *testing.T) {
	assert.Equal(t, 5, digitWidth(0))
	assert.Equal(t, 5, digitWidth(99))
	assert.Equal(t, 6, digitWidth(100000))
}
