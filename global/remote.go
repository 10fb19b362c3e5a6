package global

import (
	"os"

	"go.uber.org/zap"

	"PPGate/logger"
	"PPGate/service/nacos"
)

// LoadFromNacos uses the remote document in place of the local file; the
// environment still overrides it.
func LoadFromNacos(src *nacos.Source) (*AppConfig, error) {
	content, err := src.Fetch()
	if err != nil {
		return nil, err
	}
	return Parse([]byte(content), os.Environ())
}

// WatchNacos applies later revisions. Only the log level is reloaded live;
// everything else needs a restart.
func WatchNacos(src *nacos.Source) error {
	return src.Watch(func(content string) {
		cfg, err := Parse([]byte(content), os.Environ())
		if err != nil {
			logger.Warn("ignoring invalid nacos revision", zap.Error(err))
			return
		}
		logger.SetLevel(cfg.Log.Level)
		logger.Info("log level reloaded", zap.String("level", cfg.Log.Level))
	})
}
