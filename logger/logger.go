package logger

import (
	"go.uber.org/zap"
)

var Log *zap.SugaredLogger

// Init builds the global logger. Debug switches to the development
// encoder with human-readable output.
func Init(debug bool) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}
