package logger

import "go.uber.org/fx"

// Module makes Fx log through this package instead of its own console logger.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
)
