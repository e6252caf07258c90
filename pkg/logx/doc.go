// Package logx is pdfbot's structured logging: a small value-type Logger
// over zerolog, and a Service that owns the outputs and can swap them at
// runtime (console, JSON file, and warnings forwarded to a Telegram chat).
package logx
