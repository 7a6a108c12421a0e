package core

// Logger is any leveled logger.
// Implementations may inspect trailing args for context values they understand
// (e.g. an acting user id for error-reporting services).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
