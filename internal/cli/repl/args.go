package repl

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnbalancedQuotes is returned for a line with an unterminated quote.
var ErrUnbalancedQuotes = errors.New("invalid argument(s): unbalanced quotes")

// SplitArgs splits a command line into arguments.
func SplitArgs(line string) ([]string, error) {
	var (
		args []string
		cur  strings.Builder
		in   bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == ' ' || c == '\t':
			if in {
				args = append(args, cur.String())
				cur.Reset()
				in = false
			}
		case c == '"' || c == '\'':
			end, err := readQuoted(line, i, &cur)
			if err != nil {
				return nil, err
			}
			// A closing quote must be followed by a space or the end.
			if end+1 < len(line) && line[end+1] != ' ' && line[end+1] != '\t' {
				return nil, ErrUnbalancedQuotes
			}
			in = true
			i = end
		default:
			cur.WriteByte(c)
			in = true
		}
	}
	if in {
		args = append(args, cur.String())
	}
	return args, nil
}

// readQuoted appends the quoted string starting at line[start] to cur and
// returns the index of the closing quote.
func readQuoted(line string, start int, cur *strings.Builder) (int, error) {
	quote := line[start]
	for i := start + 1; i < len(line); i++ {
		c := line[i]
		switch {
		case c == quote:
			return i, nil
		case c == '\\' && i+1 < len(line):
			if quote == '\'' {
				if line[i+1] == '\'' {
					cur.WriteByte('\'')
					i++
				} else {
					cur.WriteByte(c)
				}
				continue
			}
			i++
			switch e := line[i]; e {
			case 'n':
				cur.WriteByte('\n')
			case 'r':
				cur.WriteByte('\r')
			case 't':
				cur.WriteByte('\t')
			case 'x':
				if i+2 < len(line) {
					if v, err := strconv.ParseUint(line[i+1:i+3], 16, 8); err == nil {
						cur.WriteByte(byte(v))
						i += 2
						continue
					}
				}
				cur.WriteByte(e)
			default:
				cur.WriteByte(e)
			}
		default:
			cur.WriteByte(c)
		}
	}
	return 0, ErrUnbalancedQuotes
}
