package extract

import "strings"

// decodeTextOperators recovers the literal strings shown by Tj/TJ operators
// in a decoded PDF content stream. Hex strings and font-specific encodings
// are not resolved; the output is a lossy plain-text approximation good
// enough for language-model analysis.
func decodeTextOperators(content string) string {
	var (
		b       strings.Builder
		depth   int
		escaped bool
		current strings.Builder
	)

	flush := func() {
		s := strings.TrimSpace(current.String())
		current.Reset()

		if s == "" {
			return
		}

		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}

	for i := 0; i < len(content); i++ {
		c := content[i]

		if depth == 0 {
			if c == '(' {
				depth = 1
			}
			continue
		}

		if escaped {
			switch c {
			case 'n':
				current.WriteByte('\n')
			case 't':
				current.WriteByte('\t')
			case '(', ')', '\\':
				current.WriteByte(c)
			}
			escaped = false
			continue
		}

		switch c {
		case '\\':
			escaped = true
		case '(':
			depth++
			current.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				flush()
			} else {
				current.WriteByte(c)
			}
		default:
			current.WriteByte(c)
		}
	}

	return b.String()
}
