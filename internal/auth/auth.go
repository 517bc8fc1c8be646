// Package auth implements API-key authentication for borrowers and role
// checks for the administrative surface. Keys are stored bcrypt-hashed;
// a successful comparison is cached in memory to avoid re-hashing on every
// request.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// GenerateAPIKey returns a random 64-character hex API key.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashAPIKey returns the bcrypt hash of an API key for storage.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// Resolver matches presented API keys against stored hashes.
type Resolver struct {
	mu    sync.RWMutex
	cache map[string]int64 // verified key -> borrower id
}

// NewResolver creates an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]int64)}
}

// Resolve returns the borrower id owning the presented key, or false.
// hashes maps borrower id to stored bcrypt hash.
func (r *Resolver) Resolve(key string, hashes map[int64]string) (int64, bool) {
	if key == "" {
		return 0, false
	}

	r.mu.RLock()
	id, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		// Re-check the hash still exists so revoked keys stop working.
		if _, present := hashes[id]; present {
			return id, true
		}
		r.mu.Lock()
		delete(r.cache, key)
		r.mu.Unlock()
		return 0, false
	}

	for id, hash := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil {
			r.mu.Lock()
			r.cache[key] = id
			r.mu.Unlock()
			return id, true
		}
	}
	return 0, false
}
