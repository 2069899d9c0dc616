package resolve

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// soundexCodes maps consonants to their Soundex digit.
var soundexCodes = map[rune]byte{
	'B': '1', 'F': '1', 'P': '1', 'V': '1',
	'C': '2', 'G': '2', 'J': '2', 'K': '2', 'Q': '2', 'S': '2', 'X': '2', 'Z': '2',
	'D': '3', 'T': '3',
	'L': '4',
	'M': '5', 'N': '5',
	'R': '6',
}

// Soundex returns the four character American Soundex code of s, or "" for
// an empty name.
//
// The first character is kept as written (upper-cased). Adjacent letters with
// the same digit collapse, H and W do not separate them, and any other
// character (vowels, spaces, punctuation) does. Input is NFKD-decomposed
// first so accented letters code like their base letter.
func Soundex(s string) string {
	s = strings.ToUpper(norm.NFKD.String(strings.TrimSpace(s)))
	if s == "" {
		return ""
	}

	runes := []rune(s)
	out := []byte(string(runes[0]))
	count := 1

	last, hasLast := soundexCodes[runes[0]]
	for _, r := range runes[1:] {
		if count == 4 {
			break
		}
		code, ok := soundexCodes[r]
		switch {
		case ok:
			if !hasLast || code != last {
				out = append(out, code)
				count++
			}
			last, hasLast = code, true
		case r == 'H' || r == 'W':
			// keep last
		default:
			hasLast = false
		}
	}

	for ; count < 4; count++ {
		out = append(out, '0')
	}
	return string(out)
}
