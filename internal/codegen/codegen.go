// Package codegen produces unique coupon codes from a pattern template.
//
// A pattern mixes literal characters from [A-Z0-9_-] with placeholder
// groups in braces: {XXXX} expands to four random letters, {999} to
// three random digits, {**} to two random alphanumerics. Placeholder
// alphabets may be mixed inside one group ({XX99}). Randomness comes
// from crypto/rand; predictable codes would be guessable.
package codegen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	lettersAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitsAlphabet  = "0123456789"
	alnumAlphabet   = lettersAlphabet + digitsAlphabet
)

// Length bounds for externally uploaded codes. Pattern output may be
// shorter; its upper bound still applies so generated codes fit the
// code column.
const (
	MinCodeLength = 6
	MaxCodeLength = 32
)

var (
	// ErrInvalidPattern is returned when a pattern fails the grammar.
	ErrInvalidPattern = errors.New("invalid code pattern")

	// ErrPatternExhausted is returned when the draw budget runs out
	// before enough distinct codes were produced.
	ErrPatternExhausted = errors.New("pattern exhausted before reaching requested count")

	// ErrInvalidCode is returned for codes violating the code grammar
	// or length bounds.
	ErrInvalidCode = errors.New("invalid coupon code")
)

// Pattern is a parsed code template. The zero value is not usable;
// obtain one via Parse.
type Pattern struct {
	raw string
	// chars holds one entry per output character: empty string for a
	// placeholder position is never stored; literals carry themselves,
	// placeholder positions carry their full alphabet.
	chars []patternChar
}

type patternChar struct {
	literal  byte   // set when alphabet is empty
	alphabet string // drawing alphabet for placeholder positions
}

// Parse validates and compiles a pattern. A valid pattern contains at
// least one placeholder group, uses only [A-Z0-9_-] literals, and its
// output length stays within the code length bounds.
func Parse(raw string) (*Pattern, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}

	p := &Pattern{raw: raw}
	placeholders := 0
	inGroup := false
	groupLen := 0

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '{':
			if inGroup {
				return nil, fmt.Errorf("%w: nested brace at position %d", ErrInvalidPattern, i)
			}
			inGroup = true
			groupLen = 0
		case c == '}':
			if !inGroup {
				return nil, fmt.Errorf("%w: unmatched brace at position %d", ErrInvalidPattern, i)
			}
			if groupLen == 0 {
				return nil, fmt.Errorf("%w: empty placeholder at position %d", ErrInvalidPattern, i)
			}
			inGroup = false
		case inGroup:
			alphabet, ok := placeholderAlphabet(c)
			if !ok {
				return nil, fmt.Errorf("%w: placeholder token %q at position %d", ErrInvalidPattern, string(c), i)
			}
			p.chars = append(p.chars, patternChar{alphabet: alphabet})
			placeholders++
			groupLen++
		default:
			if !isCodeChar(c) {
				return nil, fmt.Errorf("%w: literal %q at position %d", ErrInvalidPattern, string(c), i)
			}
			p.chars = append(p.chars, patternChar{literal: c})
		}
	}

	if inGroup {
		return nil, fmt.Errorf("%w: unterminated placeholder", ErrInvalidPattern)
	}
	if placeholders == 0 {
		return nil, fmt.Errorf("%w: no placeholder", ErrInvalidPattern)
	}
	if len(p.chars) > MaxCodeLength {
		return nil, fmt.Errorf("%w: output length %d exceeds %d",
			ErrInvalidPattern, len(p.chars), MaxCodeLength)
	}
	return p, nil
}

func placeholderAlphabet(c byte) (string, bool) {
	switch c {
	case 'X', 'x':
		return lettersAlphabet, true
	case '9':
		return digitsAlphabet, true
	case '*':
		return alnumAlphabet, true
	}
	return "", false
}

func isCodeChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

// String returns the raw pattern text.
func (p *Pattern) String() string { return p.raw }

// MaxUniqueCodes returns the exact number of distinct codes the
// pattern can produce: the product of each placeholder's alphabet size.
func (p *Pattern) MaxUniqueCodes() *big.Int {
	max := big.NewInt(1)
	for _, pc := range p.chars {
		if pc.alphabet != "" {
			max.Mul(max, big.NewInt(int64(len(pc.alphabet))))
		}
	}
	return max
}

// CanGenerate reports whether count distinct codes can be requested
// from the pattern, applying the 80% capacity rule:
// count <= 0.80 * MaxUniqueCodes, evaluated exactly as 5*count <= 4*max.
func (p *Pattern) CanGenerate(count int) bool {
	if count <= 0 {
		return false
	}
	lhs := new(big.Int).Mul(big.NewInt(5), big.NewInt(int64(count)))
	rhs := new(big.Int).Mul(big.NewInt(4), p.MaxUniqueCodes())
	return lhs.Cmp(rhs) <= 0
}

// Generate draws count distinct codes from the pattern. Collisions are
// discarded; if 10*count draws do not yield count distinct codes the
// generator gives up with ErrPatternExhausted. Callers are expected to
// have checked CanGenerate first.
func (p *Pattern) Generate(count int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrInvalidPattern)
	}

	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	budget := 10 * count

	var sb strings.Builder
	for draws := 0; draws < budget && len(codes) < count; draws++ {
		sb.Reset()
		for _, pc := range p.chars {
			if pc.alphabet == "" {
				sb.WriteByte(pc.literal)
				continue
			}
			idx, err := randomIndex(len(pc.alphabet))
			if err != nil {
				return nil, fmt.Errorf("draw random index: %w", err)
			}
			sb.WriteByte(pc.alphabet[idx])
		}
		code := sb.String()
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	if len(codes) < count {
		return nil, fmt.Errorf("%w: produced %d of %d within %d draws",
			ErrPatternExhausted, len(codes), count, budget)
	}
	return codes, nil
}

// randomIndex returns a uniform index in [0, n) from crypto/rand,
// using rejection sampling to avoid modulo bias.
func randomIndex(n int) (int, error) {
	limit := 256 - (256 % n)
	var buf [1]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		if int(buf[0]) < limit {
			return int(buf[0]) % n, nil
		}
	}
}

// Normalize upper-cases and trims an externally supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCode checks a normalized code against the code grammar:
// 6-32 characters from [A-Z0-9_-].
func ValidateCode(code string) error {
	if len(code) < MinCodeLength || len(code) > MaxCodeLength {
		return fmt.Errorf("%w: length %d outside [%d, %d]",
			ErrInvalidCode, len(code), MinCodeLength, MaxCodeLength)
	}
	for i := 0; i < len(code); i++ {
		if !isCodeChar(code[i]) {
			return fmt.Errorf("%w: character %q at position %d", ErrInvalidCode, string(code[i]), i)
		}
	}
	return nil
}
