package resp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// ReadReply reads one reply of any type from r.
//
// Nil bulk strings are returned as NullBulk; error replies are returned as
// ErrorReply values, not as Go errors.
func ReadReply(r *bufio.Reader) (Reply, error) {
	line, err := readLine(r, MaxBulkLen)
	if err != nil {
		return nil, err
	}
	if line == "" {
		return nil, fmt.Errorf("%w: empty reply line", ErrProtocol)
	}

	switch line[0] {
	case '+':
		return SimpleString(line[1:]), nil
	case '-':
		return ErrorReply(line[1:]), nil
	case ':':
		n, err := strconv.ParseInt(line[1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid integer reply", ErrProtocol)
		}
		return Integer(n), nil
	case '$':
		n, err := strconv.Atoi(line[1:])
		if err != nil || n < -1 {
			return nil, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
		}
		if n == -1 {
			return NullBulk, nil
		}
		if n > MaxBulkLen {
			return nil, fmt.Errorf("%w: bulk length %d exceeds limit %d", ErrLimitExceeded, n, MaxBulkLen)
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, midFrame(err)
		}
		if buf[n] != '\r' || buf[n+1] != '\n' {
			return nil, fmt.Errorf("%w: bulk length does not match content", ErrProtocol)
		}
		return BulkString(buf[:n]), nil
	case '*':
		n, err := strconv.Atoi(line[1:])
		if err != nil || n < -1 {
			return nil, fmt.Errorf("%w: invalid array length", ErrProtocol)
		}
		if n > MaxArrayLen {
			return nil, fmt.Errorf("%w: array length %d exceeds limit %d", ErrLimitExceeded, n, MaxArrayLen)
		}
		if n == -1 {
			return NullBulk, nil
		}
		out := make(Array, 0, n)
		for i := 0; i < n; i++ {
			item, err := ReadReply(r)
			if err != nil {
				return nil, midFrame(err)
			}
			out = append(out, item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown reply type %q", ErrProtocol, line[0])
	}
}
