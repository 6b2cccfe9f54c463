package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/faxd/internal/logging"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		for _, level := range []string{"", "debug", "info", "warn", "error"} {
			logger, err := logging.New(level, format)
			require.NoError(t, err, "level=%q format=%q", level, format)
			require.NotNil(t, logger)
			logger.Info("test entry")
		}
	}
}

func TestNew_UnknownLevel(t *testing.T) {
	_, err := logging.New("verbose", "json")
	assert.Error(t, err)
}
