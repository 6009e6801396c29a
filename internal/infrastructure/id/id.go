package id

import "github.com/google/uuid"

// UUIDGenerator issues random (v4) UUIDs for orders, payment records and events.
type UUIDGenerator struct{}

func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

func (UUIDGenerator) NewID() string { return uuid.NewString() }
