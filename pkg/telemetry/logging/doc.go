// Package logging builds the gateway's structured logger on top of
// log/slog.
//
// The package owns two things: constructing a configured *slog.Logger
// (level, json/text format, optional source locations), and propagating a
// request ID through context so every log line emitted while serving a
// request carries the same correlation key:
//
//	logger, _ := logging.New(logging.Config{Level: "info", Format: "json"})
//	ctx := logging.ContextWithRequestID(r.Context(), id)
//	logger.InfoContext(ctx, "request admitted") // includes request_id=id
package logging
