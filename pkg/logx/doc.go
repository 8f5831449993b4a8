// Package logx provides the structured logging facade used across clawbot.
//
// It wraps zerolog with a small Field-closure API so call sites stay stable
// while sinks (console, file) and levels can be swapped live via the Service.
package logx
