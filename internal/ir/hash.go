package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainCatalog = "moments/catalog/v1"
	DomainParams  = "moments/params/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // separator prevents domain/data boundary ambiguity
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CatalogHash computes the identity of a decoded catalog document.
// Equivalent documents (key order, 3 vs 3.0, NFC variants) hash alike.
func CatalogHash(doc any) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("CatalogHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCatalog, canonical), nil
}

// ParamsHash identifies the inputs of one generation request, so logs can
// tell a retry with identical inputs from one with changed context.
func ParamsHash(artifactID string, params map[string]any) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"artifact_id": artifactID,
		"params":      params,
	})
	if err != nil {
		return "", fmt.Errorf("ParamsHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainParams, canonical), nil
}

// MustCatalogHash is like CatalogHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustCatalogHash(doc any) string {
	h, err := CatalogHash(doc)
	if err != nil {
		panic(err)
	}
	return h
}
