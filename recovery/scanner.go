package recovery

import (
	"strings"
)

// scanState is the position of the quote-repair scanner relative to JSON strings.
type scanState int

const (
	stateOutside scanState = iota
	stateInKey             // inside a key, array element, or other structural string
	stateInValue           // inside a string that follows ':'
	stateEscaped           // after a backslash; resumes the state held in resume
)

func (s scanState) String() string {
	switch s {
	case stateOutside:
		return "outside"
	case stateInKey:
		return "in_key"
	case stateInValue:
		return "in_value"
	case stateEscaped:
		return "escaped"
	default:
		return "unknown"
	}
}

// RepairReport describes what Repair changed.
type RepairReport struct {
	// Escaped holds the byte offsets, in the input, of quotes that were escaped.
	Escaped []int
	// HeuristicMismatch is set when the end-of-value lookahead disagreed with
	// brace balancing: a value was closed by a trailing '}'/']' run after which
	// the structure did not balance, or the top-level object closed before
	// the end of the input.
	HeuristicMismatch bool
}

// Repair escapes unescaped double quotes found inside JSON string values.
//
// A quote opens a value only when the nearest preceding non-space byte is
// ':'. Inside a value a quote closes it only when the nearest following
// non-space byte is ',', '}', ']' or the end of input; any other quote is
// written as \". Keys and structural strings are copied verbatim.
// Repair is idempotent.
func Repair(s string) (string, RepairReport) {
	var (
		out      strings.Builder
		report   RepairReport
		state    = stateOutside
		resume   = stateOutside
		depth    int
		closedAt = -1
		// closedByBracket records whether the last value close relied on a
		// following '}' or ']' rather than ','.
		closedByBracket bool
	)
	out.Grow(len(s) + 16)

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch state {
		case stateEscaped:
			out.WriteByte(c)
			state = resume
			continue

		case stateOutside:
			switch c {
			case '\\':
				resume = stateOutside
				state = stateEscaped
			case '"':
				if prevNonSpace(s, i) == ':' {
					state = stateInValue
				} else {
					state = stateInKey
				}
			case '{', '[':
				depth++
			case '}', ']':
				depth--
				if depth == 0 && closedAt < 0 {
					closedAt = i
				}
			}
			out.WriteByte(c)

		case stateInKey:
			switch c {
			case '\\':
				resume = stateInKey
				state = stateEscaped
			case '"':
				state = stateOutside
			}
			out.WriteByte(c)

		case stateInValue:
			switch c {
			case '\\':
				resume = stateInValue
				state = stateEscaped
				out.WriteByte(c)
			case '"':
				next := nextNonSpace(s, i)
				if next == ',' || next == '}' || next == ']' || next == 0 {
					state = stateOutside
					closedByBracket = next == '}' || next == ']'
					out.WriteByte(c)
				} else {
					report.Escaped = append(report.Escaped, i)
					out.WriteString(`\"`)
				}
			default:
				out.WriteByte(c)
			}
		}
	}

	if depth != 0 && closedByBracket {
		report.HeuristicMismatch = true
	}
	if closedAt >= 0 && hasContentAfter(s, closedAt) {
		report.HeuristicMismatch = true
	}
	if state != stateOutside {
		report.HeuristicMismatch = true
	}

	return out.String(), report
}

// prevNonSpace returns the nearest non-whitespace byte before i, or 0.
func prevNonSpace(s string, i int) byte {
	for j := i - 1; j >= 0; j-- {
		if !isSpace(s[j]) {
			return s[j]
		}
	}
	return 0
}

// nextNonSpace returns the nearest non-whitespace byte after i, or 0 at end of input.
func nextNonSpace(s string, i int) byte {
	for j := i + 1; j < len(s); j++ {
		if !isSpace(s[j]) {
			return s[j]
		}
	}
	return 0
}

func hasContentAfter(s string, i int) bool {
	return nextNonSpace(s, i) != 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
