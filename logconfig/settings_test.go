package logconfig

import (
	"testing"

	myLogger "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	defer ConfigInfoLogger()

	require.NoError(t, Config("debug", "text"))
	assert.Equal(t, myLogger.DebugLevel, myLogger.GetLevel())
	assert.IsType(t, &myLogger.TextFormatter{}, myLogger.StandardLogger().Formatter)

	require.NoError(t, Config("warn", "json"))
	assert.Equal(t, myLogger.WarnLevel, myLogger.GetLevel())
	assert.IsType(t, &myLogger.JSONFormatter{}, myLogger.StandardLogger().Formatter)

	assert.Error(t, Config("loud", "text"))
	assert.Error(t, Config("info", "xml"))
}
