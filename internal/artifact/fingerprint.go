package artifact

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Fingerprint is a content hash of an artifact.
type Fingerprint struct {
	Hash string `json:"hash"` // SHA256 of the JSON form
}

// ComputeFingerprint hashes the dependencies and operations of a.
func ComputeFingerprint(a *Artifact) (*Fingerprint, error) {
	hash, err := hashObject(a)
	if err != nil {
		return nil, fmt.Errorf("failed to compute artifact hash: %w", err)
	}
	return &Fingerprint{Hash: hash}, nil
}

// Equal reports whether two artifacts have the same fingerprint.
func Equal(a, b *Artifact) (bool, error) {
	fa, err := ComputeFingerprint(normalized(a))
	if err != nil {
		return false, err
	}
	fb, err := ComputeFingerprint(normalized(b))
	if err != nil {
		return false, err
	}
	return fa.Hash == fb.Hash, nil
}

// normalized treats a nil and an empty dependency list alike.
func normalized(a *Artifact) *Artifact {
	if a.Dependencies != nil {
		return a
	}
	return &Artifact{Dependencies: []string{}, Operations: a.Operations}
}

// hashObject computes a SHA256 hash of any object
func hashObject(obj interface{}) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}

// String returns a human-readable representation of the fingerprint
func (f *Fingerprint) String() string {
	if len(f.Hash) >= 8 {
		return fmt.Sprintf("Artifact fingerprint: %s", f.Hash[:8])
	}
	return fmt.Sprintf("Artifact fingerprint: %s", f.Hash)
}
