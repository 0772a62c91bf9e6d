// Package logx configures pummel's console logging on top of zerolog.
//
// Two layouts exist:
//   - plain: short timestamp, level and message
//   - debug: the same plus a short caller (file:line)
//
// The level comes from the caller, and PUMMEL_LOG overrides it when set.
package logx
