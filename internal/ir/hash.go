package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainResearchTable = "sirad/research-table/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes a table's content independent of row order.
// header is the canonical encoding of the column names; rows are canonical
// row encodings (see MarshalRow) in any order.
func Fingerprint(header []byte, rows [][]byte) string {
	sorted := slices.Clone(rows)
	slices.SortFunc(sorted, bytes.Compare)

	var buf bytes.Buffer
	buf.Write(header)
	for _, r := range sorted {
		buf.WriteByte('\n')
		buf.Write(r)
	}
	return hashWithDomain(DomainResearchTable, buf.Bytes())
}
