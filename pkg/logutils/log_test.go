package logutils

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestResolveLevelFromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT_LOG_LEVEL", "warning")
	assert.Equal(t, logrus.WarnLevel, resolveLevel())
}

func TestResolveLevelIgnoresUnknownValue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("ENVIRONMENT_LOG_LEVEL", "chatty")
	assert.Equal(t, logrus.InfoLevel, resolveLevel())
}
