// Package domain defines the core types and contracts shared by the ephemeris,
// broadcaster and transport layers. No implementation code, just contracts.
package domain
