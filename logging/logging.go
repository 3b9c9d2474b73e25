package logging

import "go.uber.org/zap"

func GetSugaredLogger() *zap.SugaredLogger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("cannot initialize zap")
	}
	sl := logger.Sugar()

	return sl
}

// GetLogger picks the zap preset matching LOG_FORMAT.
func GetLogger(format string) *zap.SugaredLogger {
	if format != "json" {
		return GetSugaredLogger()
	}
	logger, err := zap.NewProduction()
	if err != nil {
		panic("cannot initialize zap")
	}
	return logger.Sugar()
}
