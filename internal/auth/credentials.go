// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package auth

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"unicode"

	"github.com/samber/oops"
)

// Password policy defaults and bounds.
const (
	DefaultPasswordLength = 12
	MinPasswordLength     = 8
	MaxPasswordLength     = 128
)

// Character classes drawn from when generating passwords. Visually
// ambiguous characters are left out.
const (
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	digitChars  = "23456789"
	symbolChars = "!@#$%^&*-_=+?"
)

// PasswordPolicy describes generated passwords.
type PasswordPolicy struct {
	Length        int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPasswordPolicy returns a 12 character mixed-case alphanumeric policy.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		Length:       DefaultPasswordLength,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

// Validate checks the policy can produce passwords.
func (p PasswordPolicy) Validate() error {
	if p.Length < MinPasswordLength || p.Length > MaxPasswordLength {
		return oops.Code("AUTH_INVALID_POLICY").
			With("length", p.Length).
			Errorf("password length must be between %d and %d", MinPasswordLength, MaxPasswordLength)
	}
	return nil
}

// classes returns the required character classes. A policy that requires
// nothing draws from letters and digits.
func (p PasswordPolicy) classes() []string {
	var cs []string
	if p.RequireUpper {
		cs = append(cs, upperChars)
	}
	if p.RequireLower {
		cs = append(cs, lowerChars)
	}
	if p.RequireDigit {
		cs = append(cs, digitChars)
	}
	if p.RequireSymbol {
		cs = append(cs, symbolChars)
	}
	if len(cs) == 0 {
		cs = []string{upperChars, lowerChars, digitChars}
	}
	return cs
}

// GeneratePassword returns a random password satisfying the policy. Every
// required class contributes at least one character; the rest come from
// the union of the classes and the result is shuffled.
func GeneratePassword(p PasswordPolicy) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	classes := p.classes()
	all := strings.Join(classes, "")

	out := make([]byte, 0, p.Length)
	for _, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < p.Length {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates
	for i := len(out) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func randomChar(alphabet string) (byte, error) {
	i, err := randomInt(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, oops.Code("AUTH_RANDOM_FAILED").Wrap(err)
	}
	return int(v.Int64()), nil
}

// normalizeNamePart lowercases s and keeps only letters and digits.
func normalizeNamePart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BaseUsername derives the deterministic handle for a name pair: the first
// letter of the first name followed by the last name, lowercased and
// stripped of anything but letters and digits. It returns "" when either
// part normalizes to nothing.
func BaseUsername(firstName, lastName string) string {
	first := normalizeNamePart(firstName)
	last := normalizeNamePart(lastName)
	if first == "" || last == "" {
		return ""
	}
	r := []rune(first)
	return string(r[0]) + last
}

// CandidateUsername returns the n-th candidate for base: base itself for
// n == 0, then base+"0", base+"1" and so on.
func CandidateUsername(base string, n int) string {
	if n == 0 {
		return base
	}
	return base + strconv.Itoa(n-1)
}
