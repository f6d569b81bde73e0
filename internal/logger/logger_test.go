package logger_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"cipherlog/internal/logger"
)

func TestNew_Modes(t *testing.T) {
	require := require.New(t)

	prod, err := logger.New(logger.ProductionMode, "warn")
	require.NoError(err)
	require.False(prod.Core().Enabled(zapcore.InfoLevel))
	require.True(prod.Core().Enabled(zapcore.WarnLevel))

	dev, err := logger.New(logger.DevelopmentMode, "")
	require.NoError(err)
	require.True(dev.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_BadLevel(t *testing.T) {
	_, err := logger.New(logger.ProductionMode, "loud")
	require.Error(t, err)
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, logger.OrNop(nil))
}
