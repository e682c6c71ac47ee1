// Package logging provides structured logging for baton.
//
// This package wraps Go's log/slog to write JSON lines, either to stderr or to
// a baton.log file inside a configured directory. Child loggers carry
// persistent attributes so every line emitted on behalf of an invocation can
// be traced back to it.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/baton", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	inv := logger.WithAgent("doubler").WithInvocation(id).WithLock("shared")
//	inv.Debug("lock acquired", "wait_ms", 3)
//
// Output:
//
//	{"time":"...","level":"DEBUG","msg":"lock acquired","agent":"doubler","invocation_id":"...","lock":"shared","wait_ms":3}
//
// # Log Rotation
//
// [NewLoggerWithRotation] backs the logger with a [RotatingWriter]. Rotated
// files are named baton.log.1 (newest) through baton.log.N, gzipped when
// [RotationConfig].Compress is set.
//
// # Reading Logs Back
//
// [ReadLogs] parses a log directory, [FilterLogs] narrows the entries by
// level, agent, lock or event, and [WriteEntries] renders them as text or
// JSON. The "baton logs" command is built on these.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a
// bytes.Buffer to assert on emitted lines.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers share
// the underlying writer and its close state.
package logging
