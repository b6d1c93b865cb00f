package note

import (
	"fmt"
	"math"
	"strings"
)

// Hz is the frequency of a single voice.
type Hz float64

const (
	// A4 is the tuning reference.
	A4 Hz = 440.0
	// a4Semitone is the index of A4 counted from C0.
	a4Semitone = 57
	// Octaves covered by the table, C0 through B8.
	Octaves = 9
	// semitones per octave
	octaveSize = 12
)

// UnknownNoteError reports a chord token that does not name a note in the table.
type UnknownNoteError struct {
	Token string
}

func (e *UnknownNoteError) Error() string {
	if e.Token == "" {
		return "unknown note: empty token"
	}
	return fmt.Sprintf("unknown note %q", e.Token)
}

var (
	// table holds one frequency per semitone from C0 (index 0) to B8.
	table [Octaves * octaveSize]Hz

	// letterOffset maps a pitch letter to its semitone within the octave.
	letterOffset = map[byte]int{
		'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
	}

	names = [octaveSize]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
)

func init() {
	for i := range table {
		table[i] = A4 * Hz(math.Pow(2, float64(i-a4Semitone)/octaveSize))
	}
}

// Semitone returns the table index of token, counting from C0.
// Tokens are a pitch letter, an optional '#' or 'b' and an octave digit.
func Semitone(token string) (int, error) {
	if len(token) < 2 || len(token) > 3 {
		return 0, &UnknownNoteError{Token: token}
	}

	offset, ok := letterOffset[upper(token[0])]
	if !ok {
		return 0, &UnknownNoteError{Token: token}
	}

	rest := token[1:]
	if len(rest) == 2 {
		switch rest[0] {
		case '#':
			offset++
		case 'b':
			offset--
		default:
			return 0, &UnknownNoteError{Token: token}
		}
		rest = rest[1:]
	}

	if rest[0] < '0' || rest[0] > '9' {
		return 0, &UnknownNoteError{Token: token}
	}
	idx := int(rest[0]-'0')*octaveSize + offset
	if idx < 0 || idx >= len(table) {
		return 0, &UnknownNoteError{Token: token}
	}
	return idx, nil
}

// Resolve returns the equal-tempered frequency of a note token such as "A4" or "Bb0".
// Enharmonic spellings share a table entry and therefore resolve to the same value.
func Resolve(token string) (Hz, error) {
	idx, err := Semitone(token)
	if err != nil {
		return 0, err
	}
	return table[idx], nil
}

// ParseChord resolves a whitespace separated list of note tokens.
// The whole chord fails on the first bad token.
func ParseChord(chord string) ([]Hz, error) {
	tokens := strings.Fields(chord)
	if len(tokens) == 0 {
		return nil, &UnknownNoteError{}
	}

	voices := make([]Hz, 0, len(tokens))
	for _, tok := range tokens {
		f, err := Resolve(tok)
		if err != nil {
			return nil, err
		}
		voices = append(voices, f)
	}
	return voices, nil
}

// Name returns the sharp spelling of a semitone index, e.g. 57 -> "A4".
func Name(semitone int) string {
	if semitone < 0 || semitone >= len(table) {
		return "?"
	}
	return fmt.Sprintf("%s%d", names[semitone%octaveSize], semitone/octaveSize)
}

// Nearest returns the semitone index whose frequency is closest to f on a log scale.
func Nearest(f Hz) int {
	if f <= 0 {
		return 0
	}
	idx := int(math.Round(a4Semitone + octaveSize*math.Log2(float64(f/A4))))
	return min(max(idx, 0), len(table)-1)
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
