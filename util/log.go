package util

import "github.com/hauke96/sigolo/v2"

// LogFatalBug logs the message and exits. Use this only for states that cannot occur unless the code itself is wrong.
func LogFatalBug(format string, args ...interface{}) {
	sigolo.Fatalb(1, format+" - This is a bug in the tile database", args...)
}

// ApplyLogLevel sets the default log level by its name. Unknown names result in an error-free fallback to "info" and
// the returned boolean is false.
func ApplyLogLevel(level string) bool {
	switch level {
	case "trace":
		sigolo.SetDefaultLogLevel(sigolo.LOG_TRACE)
	case "debug":
		sigolo.SetDefaultLogLevel(sigolo.LOG_DEBUG)
	case "info":
		sigolo.SetDefaultLogLevel(sigolo.LOG_INFO)
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
	default:
		sigolo.SetDefaultLogLevel(sigolo.LOG_INFO)
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
		return false
	}
	return true
}
