package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogger_ReturnsDefault(t *testing.T) {
	assert.NotNil(t, GetLogger())
}

func TestInitLogger_ConsoleOnly(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Logging.Output = []string{"stdout"}

	logger := InitLogger(cfg)
	assert.NotNil(t, logger)
	assert.Same(t, logger, GetLogger())
}

func TestInitLogger_JSONFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Output = []string{"stdout"}

	assert.NotNil(t, InitLogger(cfg))
}
