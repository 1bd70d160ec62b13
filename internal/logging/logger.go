// Package logging defines the structured-logging interface of the wallet
// server and hpctl, and the slog and zap backends behind it.
package logging

import "context"

// Logger writes leveled records made of a message and key/value pairs:
//
//	log.Info(ctx, "transfer committed", "from", from, "amount", amount)
//
// Records written with a ctx from WithRequestID also carry request_id.
// Services keep a child logger tagged with their module name.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	// Warn is for failures the wallet recovers from, such as a retried
	// submission or a compensated transfer.
	Warn(ctx context.Context, msg string, args ...any)
	// Error is for state the wallet could not settle on its own.
	Error(ctx context.Context, msg string, args ...any)
	With(args ...any) Logger
}
