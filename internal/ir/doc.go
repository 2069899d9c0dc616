// Package ir provides the typed intermediate representation shared by every
// stage of a sirad build.
//
// This package contains value and layout definitions only. All other internal
// packages import ir; ir imports nothing internal. This keeps ir the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Attribute values are one of Null, Text, Number, Int or Date (sealed)
//   - Dates are civil dates carried as ISO-8601 text ("2006-01-02")
//   - A Layout classifies each source column as non-identifying (Data),
//     identifying (PII), or both when the data side is transformed
//   - Identifiers (dataset, column names) are plain SQL identifiers, never
//     quoted user text
//   - Row encodings used for fingerprints are canonical: NFC strings,
//     shortest round-trip floats, no HTML escaping
package ir
