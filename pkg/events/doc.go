// Package events defines the closed alphabet of events that flow through the
// recorder: raw input and UI-automation notifications coming from a capture
// backend, and the semantic events the aggregation pipeline derives from them.
//
// Payloads form a sealed sum type. Only types in this package implement
// Payload, and NewPayload must know every Kind; the package tests enforce
// that each Kind round-trips through the JSON envelope.
package events
