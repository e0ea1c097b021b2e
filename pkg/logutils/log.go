package logutils

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Log is the logger used by the provisioning service.
var Log = logrus.New()

// Fields is the type of logrus.Fields.
type Fields = logrus.Fields

//nolint:gochecknoinits // This is the only place where we should set the log level.
func init() {
	Log.SetLevel(resolveLevel())
	Log.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})
	Log.SetReportCaller(true)
}

// resolveLevel honors ENVIRONMENT_LOG_LEVEL when set, otherwise derives
// the level from the gin mode so local runs stay chatty and deployed
// ones do not.
func resolveLevel() logrus.Level {
	if raw := os.Getenv("ENVIRONMENT_LOG_LEVEL"); raw != "" {
		if level, err := logrus.ParseLevel(raw); err == nil {
			return level
		}
		Log.Warnf("unknown ENVIRONMENT_LOG_LEVEL %q, falling back to gin mode", raw)
	}
	if gin.Mode() == gin.DebugMode {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}
