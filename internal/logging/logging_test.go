package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	prod, err := New("production", "warn")
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zap.InfoLevel))
	assert.True(t, prod.Core().Enabled(zap.WarnLevel))

	dev, err := New("development", "debug")
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zap.DebugLevel))

	_, err = New("development", "loud")
	assert.Error(t, err)
}
