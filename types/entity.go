// Package types provides common types used across tickstream.
package types

import "time"

// Entity is the base type for tickstream records with timestamps.
//
// Timestamps come from the block context supplied by the host, never from
// the wall clock, so replaying the same transitions yields identical
// records. They are zero when the host supplies no timestamp.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates a new Entity stamped at the given time.
func NewEntity(at time.Time) Entity {
	at = at.UTC()
	return Entity{
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Touch updates the UpdatedAt timestamp.
func (e *Entity) Touch(at time.Time) {
	e.UpdatedAt = at.UTC()
}
