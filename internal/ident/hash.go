package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed digests. The version suffix
// leaves room for algorithm migration.
const (
	DomainStep   = "omsid/step/v1"
	DomainResult = "omsid/result/v1"
	DomainBank   = "omsid/bank/v1"
)

// DigestHex computes SHA-256 over domain + 0x00 + payload and returns it
// hex-encoded. The null separator keeps the domain/payload boundary
// unambiguous.
func DigestHex(domain string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// StepIdentity is the name-resolved content of a processing step. Two
// steps with equal identity are the same step, no matter which registry
// issued their refs or in what order descriptors were registered.
type StepIdentity struct {
	Software    string
	Version     string
	InputFiles  []string
	CompletedAt string
	Actions     []string
}

// Digest returns the step's content digest. Stable across processes and
// registries given the same identity.
func (id StepIdentity) Digest() (string, error) {
	obj := map[string]any{
		"software":     id.Software,
		"version":      id.Version,
		"input_files":  id.InputFiles,
		"completed_at": id.CompletedAt,
		"actions":      id.Actions,
	}
	payload, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("step identity: %w", err)
	}
	return DigestHex(DomainStep, payload), nil
}
