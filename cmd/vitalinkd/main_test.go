package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "v2", formatVersion("2"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestConfigureLogger(t *testing.T) {
	newCmd := func(level string) *cobra.Command {
		cmd := &cobra.Command{}
		cmd.Flags().String("log-level", "", "")
		if level != "" {
			require.NoError(t, cmd.Flags().Set("log-level", level))
		}
		return cmd
	}

	logger, err := configureLogger(newCmd(""), logrus.WarnLevel)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger, err = configureLogger(newCmd("debug"), logrus.WarnLevel)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	_, err = configureLogger(newCmd("chatty"), logrus.WarnLevel)
	assert.Error(t, err)
}

func TestColorRSSI(t *testing.T) {
	assert.Contains(t, colorRSSI(-50), "-50 dBm")
	assert.Contains(t, colorRSSI(-70), "-70 dBm")
	assert.Contains(t, colorRSSI(-95), "-95 dBm")
}
