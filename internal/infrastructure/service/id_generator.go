// Package service holds infrastructure services shared by the application
// layer: identifiers and the notification sink.
package service

import "github.com/google/uuid"

// IDGenerator issues random UUIDv4 identifiers.
type IDGenerator struct{}

// NewIDGenerator creates a new IDGenerator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// GenerateID returns a new UUID string.
func (g *IDGenerator) GenerateID() string {
	return uuid.New().String()
}
