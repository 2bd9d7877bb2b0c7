/*
Package log provides structured logging for the timeline service.

The log package wraps zerolog with a global logger, level configuration,
and helpers for attaching the common context fields of the timeline
domain (component, viewer, note, author).

# Usage

Initialize once at process start:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Create child loggers with bound fields:

	logger := log.WithComponent("cache")
	logger.Debug().Str("viewer_id", viewerID).Msg("cache miss")

Components hold their child logger for the process lifetime; per-request
fields are added at the call site.

# Output

JSON output is intended for production; console output (RFC3339
timestamps, colorized) for development. Level defaults to info when the
configured level is unrecognized.
*/
package log
