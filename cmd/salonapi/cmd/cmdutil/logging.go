package cmdutil

import (
	"github.com/sirupsen/logrus"

	"github.com/salonbook/salonapi/internal/config"
)

// ConfigureLogging applies the level and format from cfg. Production logs are
// JSON; development logs are human-readable text.
func ConfigureLogging(log *logrus.Logger, cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
		log.WithField("log_level", cfg.LogLevel).Warn("unknown log level, using info")
	}
	if cfg.Debug {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
