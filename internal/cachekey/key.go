// Package cachekey derives deterministic cache fingerprints for remote API
// requests. The same logical request always yields the same key, across
// process restarts, independent of parameter insertion order.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Derive fingerprints a request as the hex sha256 of the canonical JSON
// serialization of (endpoint, method, version, parameters). Map keys are
// serialized in sorted order, so two logically identical parameter sets in
// different insertion orders yield the same key.
//
// The client name namespaces storage tables and rate limits but is not part
// of the fingerprint; identical requests through differently named clients
// hash the same. Callers must strip transport-only fields (webhook flags and
// the like) from params before calling; the deriver is policy-free.
func Derive(client, endpoint string, params map[string]any, method, version string) (string, error) {
	canonical, err := json.Marshal(struct {
		Endpoint string         `json:"endpoint"`
		Method   string         `json:"method"`
		Version  string         `json:"version"`
		Params   map[string]any `json:"params"`
	}{
		Endpoint: endpoint,
		Method:   method,
		Version:  version,
		Params:   params,
	})
	if err != nil {
		return "", fmt.Errorf("cachekey: serialize request for client %q: %w", client, err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
