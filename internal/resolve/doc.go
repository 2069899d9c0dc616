// Package resolve assigns pseudonymous ids to PII rows across datasets.
//
// Resolution runs in four steps over the union of every dataset's PII
// table:
//
//  1. Each row gets a Soundex code of its first name.
//  2. Rows are blocked on (last_name, soundex, dob). A block whose rows
//     attest exactly one distinct SSN has that SSN as its consensus.
//  3. Each row gets a key: its own SSN, the block consensus, a demographic
//     NDOB key, or the unlinkable sentinel, in that order of preference.
//  4. Distinct keys are sorted and dense-ranked from 1; a row's sirad_id is
//     the rank of its key.
//
// Assign is the pure algorithm. Engine reads the PII store, runs Assign and
// rewrites the sirad_id table.
package resolve
