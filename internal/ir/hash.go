package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix enables future algorithm migration.
const (
	DomainFacetKey  = "dataver/facet-key/v" + KeyFormatVersion
	DomainChangeSet = "dataver/changeset/v" + ReportFormatVersion
	DomainFacetSet  = "dataver/facet-set/v" + KeyFormatVersion
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// NaturalKey hashes the semantic attributes of a facet option into a stable
// identity. kind is folded into the hashed object so that a filter and an
// indicator sharing a column name never collide.
//
// Surrogate ids must never be part of attrs: two versions assign different
// ids to the same real-world entity.
func NaturalKey(kind string, attrs IRObject) (string, error) {
	obj := make(IRObject, len(attrs)+1)
	for k, v := range attrs {
		obj[k] = v
	}
	obj["$kind"] = IRString(kind)

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("NaturalKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFacetKey, canonical), nil
}

// ChangeSetDigest fingerprints a canonical ChangeSet report.
func ChangeSetDigest(canonical []byte) string {
	return hashWithDomain(DomainChangeSet, canonical)
}

// FacetSetDigest fingerprints the sorted natural keys of a facet set.
// Two ingestions of identical facet sets produce the same digest, which lets
// the pipeline short-circuit no-op ingestions.
func FacetSetDigest(sortedKeys []string) (string, error) {
	canonical, err := MarshalCanonical(sortedKeys)
	if err != nil {
		return "", fmt.Errorf("FacetSetDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFacetSet, canonical), nil
}

// MustNaturalKey is like NaturalKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustNaturalKey(kind string, attrs IRObject) string {
	key, err := NaturalKey(kind, attrs)
	if err != nil {
		panic(err)
	}
	return key
}
