// Package logx configures tradealert's structured logging.
//
// Components receive a logx.Logger handle at construction; there is no
// package-level logger. The wrapper keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured (the durable alert log)
package logx
