package resolve

import (
	"cmp"
	"slices"
	"sort"
)

// KeyKind classifies how a row's identity key was derived.
type KeyKind string

const (
	KindSSN        KeyKind = "ssn"
	KindNameDOB    KeyKind = "name_dob"
	KindUnresolved KeyKind = "unresolved"
)

// Key prefixes. The sentinel is the empty key so it sorts before both.
const (
	prefixSSN  = "S_"
	prefixNDOB = "NDOB_"
	sentinel   = ""
)

// PIIRow is one row of the union view. Empty strings stand for NULL.
type PIIRow struct {
	Dataset   string
	PIIID     int64
	SSN       string
	FirstName string
	LastName  string
	DOB       string
}

// Assignment maps one PII row to its pseudonymous id.
type Assignment struct {
	Dataset string  `json:"dataset" yaml:"dataset"`
	PIIID   int64   `json:"pii_id" yaml:"pii_id"`
	SiradID int64   `json:"sirad_id" yaml:"sirad_id"`
	Kind    KeyKind `json:"key_kind" yaml:"key_kind"`
}

type blockKey struct {
	last, phonetic, dob string
}

func (b blockKey) complete() bool {
	return b.last != "" && b.phonetic != "" && b.dob != ""
}

// block collects the distinct SSNs attested inside one block.
type block struct {
	ssn      string
	distinct int
}

func (b *block) observe(ssn string) {
	if ssn == "" {
		return
	}
	switch {
	case b.distinct == 0:
		b.ssn = ssn
		b.distinct = 1
	case b.ssn != ssn:
		b.distinct++
	}
}

// consensus returns the single SSN attested in the block, if any.
func (b *block) consensus() (string, bool) {
	if b == nil || b.distinct != 1 {
		return "", false
	}
	return b.ssn, true
}

// Assign derives the pseudonymous id of every row.
//
// The result is sorted by (dataset, pii_id) and depends only on the set of
// rows, not their order. Rows that get neither an SSN nor a demographic key
// all share the sentinel's id and are reported with KindUnresolved.
func Assign(rows []PIIRow) []Assignment {
	keys := make([]blockKey, len(rows))
	blocks := make(map[blockKey]*block)

	for i, r := range rows {
		k := blockKey{last: r.LastName, phonetic: Soundex(r.FirstName), dob: r.DOB}
		keys[i] = k
		if !k.complete() {
			continue
		}
		b := blocks[k]
		if b == nil {
			b = &block{}
			blocks[k] = b
		}
		b.observe(r.SSN)
	}

	type keyed struct {
		key  string
		kind KeyKind
	}
	derived := make([]keyed, len(rows))
	for i, r := range rows {
		k := keys[i]
		switch consensus, ok := blocks[k].consensus(); {
		case r.SSN != "":
			derived[i] = keyed{prefixSSN + r.SSN, KindSSN}
		case ok:
			derived[i] = keyed{prefixSSN + consensus, KindSSN}
		case k.complete():
			derived[i] = keyed{prefixNDOB + k.dob + k.last + k.phonetic, KindNameDOB}
		default:
			derived[i] = keyed{sentinel, KindUnresolved}
		}
	}

	distinct := make([]string, 0, len(derived))
	seen := make(map[string]bool, len(derived))
	for _, d := range derived {
		if !seen[d.key] {
			seen[d.key] = true
			distinct = append(distinct, d.key)
		}
	}
	sort.Strings(distinct)

	rank := make(map[string]int64, len(distinct))
	for i, k := range distinct {
		rank[k] = int64(i + 1)
	}

	out := make([]Assignment, len(rows))
	for i, r := range rows {
		out[i] = Assignment{
			Dataset: r.Dataset,
			PIIID:   r.PIIID,
			SiradID: rank[derived[i].key],
			Kind:    derived[i].kind,
		}
	}
	slices.SortFunc(out, func(a, b Assignment) int {
		if c := cmp.Compare(a.Dataset, b.Dataset); c != 0 {
			return c
		}
		return cmp.Compare(a.PIIID, b.PIIID)
	})
	return out
}

// Groups returns the number of distinct ids in assignments.
func Groups(assignments []Assignment) int {
	seen := make(map[int64]bool)
	for _, a := range assignments {
		seen[a.SiradID] = true
	}
	return len(seen)
}
