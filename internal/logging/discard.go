package logging

import "context"

// DiscardLogger drops every record. Useful as a default in constructors and
// in tests that don't assert on log output.
type DiscardLogger struct{}

func NewDiscardLogger() *DiscardLogger { return &DiscardLogger{} }

func (DiscardLogger) Debug(ctx context.Context, msg string, args ...any) {}
func (DiscardLogger) Info(ctx context.Context, msg string, args ...any)  {}
func (DiscardLogger) Warn(ctx context.Context, msg string, args ...any)  {}
func (DiscardLogger) Error(ctx context.Context, msg string, args ...any) {}
func (d DiscardLogger) With(args ...any) Logger                          { return d }
