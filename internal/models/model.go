// internal/models/model.go
package models

import (
	"strings"
	"sync"
)

// Capability names one of the three remote generation capabilities.
type Capability string

const (
	CapabilityScript Capability = "script"
	CapabilityImage  Capability = "image"
	CapabilityVideo  Capability = "video"
)

// CredentialPrefix is the mandatory prefix of a usable API key.
const CredentialPrefix = "AIza"

// ValidCredential reports whether the opaque credential has a plausible
// format. It says nothing about whether the key is actually authorized.
func ValidCredential(key string) bool {
	return strings.HasPrefix(key, CredentialPrefix)
}

// ResolvedModel is one candidate produced by discovery and consumed by the
// resolver's try-loop.
type ResolvedModel struct {
	ID         string `json:"id"`
	APIVersion string `json:"api_version"`
}

// ModelLock holds the session-wide locked model for a capability. The first
// successful image model is locked here and reused for every later scene;
// a failed attempt against the locked model clears it so the next call runs
// discovery again. The lock is an explicit value object passed by reference,
// not package state.
type ModelLock struct {
	mu     sync.Mutex
	locked *ResolvedModel
}

// NewModelLock returns an empty lock.
func NewModelLock() *ModelLock {
	return &ModelLock{}
}

// Get returns the locked model, or nil when no model is locked.
func (l *ModelLock) Get() *ResolvedModel {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked == nil {
		return nil
	}
	m := *l.locked
	return &m
}

// Set locks a model. Later Set calls overwrite; the pipeline only ever
// writes once per run unless the lock was cleared in between.
func (l *ModelLock) Set(m ResolvedModel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked = &m
}

// Clear drops the locked model. Explicit state transition on failure.
func (l *ModelLock) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked = nil
}

// ReferenceImage is a caller-supplied identity reference: raw bytes plus the
// declared mime type.
type ReferenceImage struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}
