// Package normalize provides the pure text normalizers used for matching,
// rule identity, invoice keys, and content fingerprints.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	whitespaceRe     = regexp.MustCompile(`\s+`)
	identSeparatorRe = regexp.MustCompile(`[-_/\s]`)
	nonWordRe        = regexp.MustCompile(`[^\p{L}\p{N}_]`)
	nonWordSpaceRe   = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	addressPunctRe   = regexp.MustCompile(`[,.]`)
)

// MaxFingerprintChars bounds the normalized text that is hashed.
const MaxFingerprintChars = 50000

// Text lowercases s, collapses whitespace runs to one space, and trims.
func Text(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(strings.ToLower(s), " "))
}

// Identifier normalizes account and invoice numbers so punctuation variants
// compare equal: "Acct-12/34" and "acct 1234" both become "acct1234".
func Identifier(s string) string {
	n := identSeparatorRe.ReplaceAllString(Text(s), "")
	return nonWordRe.ReplaceAllString(n, "")
}

// Address lowercases, collapses whitespace, and drops commas and periods.
func Address(s string) string {
	n := Text(s)
	return addressPunctRe.ReplaceAllString(n, "")
}

// ForFingerprint prepares text for content hashing: punctuation becomes
// space, whitespace collapses, and the result is capped at
// MaxFingerprintChars runes.
func ForFingerprint(text string) string {
	n := nonWordSpaceRe.ReplaceAllString(strings.ToLower(text), " ")
	n = strings.TrimSpace(whitespaceRe.ReplaceAllString(n, " "))
	if r := []rune(n); len(r) > MaxFingerprintChars {
		n = string(r[:MaxFingerprintChars])
	}
	return n
}

// ContentFingerprint identifies a document by its normalized text, so OCR
// punctuation jitter maps to the same fingerprint.
func ContentFingerprint(text string) string {
	return shortHash(ForFingerprint(text))
}

// RawTextHash hashes text exactly as extracted.
func RawTextHash(text string) string {
	return shortHash(text)
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(sum[:])[:16]
}
