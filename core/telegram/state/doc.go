// Package state keeps per-user conversation state behind a mutex. Values are
// replaced as a whole; compound read-modify-write goes through Table.Update.
package state
