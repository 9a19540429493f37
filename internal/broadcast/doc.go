// Package broadcast implements the position broadcaster using the actor pattern.
//
// A single goroutine owns the subscriber registry and the ticker. On every tick it
// asks the PositionSource for the current position and fans the formatted frame out
// to all subscribers. Registration, removal and ticks are serialized through one
// command channel (no mutexes). Each subscriber has its own writer goroutine with a
// bounded buffer and a write deadline, so a stuck peer only ever delays itself.
package broadcast
