package resp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Request size limits. A client exceeding one gets ErrLimitExceeded and
// the connection is dropped.
const (
	MaxArrayLen  = 1024       // arguments per request, command name included
	MaxBulkLen   = 512 * 1024 // bytes per argument
	MaxInlineLen = 4 * 1024   // bytes per inline request line
)

// headerLen bounds "*<n>" and "$<n>" lines.
const headerLen = 64

var (
	ErrProtocol      = errors.New("resp: protocol error")
	ErrLimitExceeded = errors.New("resp: limit exceeded")
)

var crlf = []byte("\r\n")

// ReadCommand reads one request: a multibulk array or, for telnet style
// clients, an inline line split on whitespace.
//
// An empty request ("*0\r\n" or a blank line) yields (nil, nil). io.EOF is
// returned only when r ends on a frame boundary; a frame cut short gives
// io.ErrUnexpectedEOF.
func ReadCommand(r *bufio.Reader) ([][]byte, error) {
	first, err := r.Peek(1)
	if err != nil {
		return nil, err
	}
	if first[0] == '*' {
		return readArray(r)
	}

	line, err := readLine(r, MaxInlineLen)
	if err != nil {
		return nil, midFrame(err)
	}
	fields := bytes.Fields([]byte(line))
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// ReadFrame is ReadCommand restricted to multibulk arrays, the only form
// allowed in log files.
func ReadFrame(r *bufio.Reader) ([][]byte, error) {
	first, err := r.Peek(1)
	if err != nil {
		return nil, err
	}
	if first[0] != '*' {
		return nil, fmt.Errorf("%w: expected array, got %q", ErrProtocol, first[0])
	}
	return readArray(r)
}

// Decode parses a buffer holding exactly one request.
func Decode(frame []byte) ([][]byte, error) {
	r := bufio.NewReader(bytes.NewReader(frame))
	args, err := ReadCommand(r)
	if err != nil {
		return nil, err
	}
	if _, err := r.Peek(1); err == nil {
		return nil, fmt.Errorf("%w: trailing bytes after frame", ErrProtocol)
	}
	return args, nil
}

func readArray(r *bufio.Reader) ([][]byte, error) {
	n, err := readHeader(r, '*', "array")
	if err != nil {
		return nil, midFrame(err)
	}
	switch {
	case n <= 0:
		return nil, nil
	case n > MaxArrayLen:
		return nil, fmt.Errorf("%w: array length %d exceeds limit %d", ErrLimitExceeded, n, MaxArrayLen)
	}

	args := make([][]byte, n)
	for i := range args {
		if args[i], err = readBulk(r); err != nil {
			return nil, midFrame(err)
		}
	}
	return args, nil
}

// readBulk reads one "$<n>\r\n<data>\r\n" argument. Nil bulks are not
// valid in requests.
func readBulk(r *bufio.Reader) ([]byte, error) {
	n, err := readHeader(r, '$', "bulk")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
	}
	if n > MaxBulkLen {
		return nil, fmt.Errorf("%w: bulk length %d exceeds limit %d", ErrLimitExceeded, n, MaxBulkLen)
	}

	data := make([]byte, n+len(crlf))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	if !bytes.Equal(data[n:], crlf) {
		return nil, fmt.Errorf("%w: bulk length does not match content", ErrProtocol)
	}
	return data[:n:n], nil
}

// readHeader reads a "<prefix><int>\r\n" line.
func readHeader(r *bufio.Reader, prefix byte, what string) (int, error) {
	line, err := readLine(r, headerLen)
	if err != nil {
		return 0, err
	}
	if len(line) < 2 || line[0] != prefix {
		return 0, fmt.Errorf("%w: expected %s header", ErrProtocol, what)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s length", ErrProtocol, what)
	}
	return n, nil
}

// readLine returns the next CRLF terminated line without its terminator.
// Lines longer than maxLen fail with ErrLimitExceeded before the rest is
// buffered.
func readLine(r *bufio.Reader, maxLen int) (string, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxLen+len(crlf) {
			return "", fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, maxLen)
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	if !bytes.HasSuffix(line, crlf) {
		return "", fmt.Errorf("%w: missing CRLF", ErrProtocol)
	}
	return string(line[:len(line)-len(crlf)]), nil
}

// midFrame reports a bare io.EOF inside a frame as io.ErrUnexpectedEOF.
func midFrame(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// HasFrame reports whether r already buffers a whole request, so that
// ReadCommand would return without touching the underlying reader.
// Malformed input counts as whole since ReadCommand fails on it.
func HasFrame(r *bufio.Reader) bool {
	buf, _ := r.Peek(r.Buffered())
	if len(buf) == 0 {
		return false
	}
	if buf[0] != '*' {
		return bytes.IndexByte(buf, '\n') >= 0
	}

	n, rest, ok := bufferedHeader(buf, '*')
	if !ok {
		return rest != nil
	}
	for i := 0; i < n; i++ {
		var size int
		if size, rest, ok = bufferedHeader(rest, '$'); !ok {
			return rest != nil
		}
		if size < 0 || len(rest) < size+len(crlf) {
			return size < 0
		}
		rest = rest[size+len(crlf):]
	}
	return true
}

// bufferedHeader parses a "<prefix><int>\r\n" line at the start of buf.
// On failure rest is nil when more bytes are needed and non-nil when the
// line is malformed.
func bufferedHeader(buf []byte, prefix byte) (n int, rest []byte, ok bool) {
	end := bytes.IndexByte(buf, '\n')
	if end < 0 {
		return 0, nil, false
	}
	line := buf[:end+1]
	if len(line) < 4 || line[0] != prefix || !bytes.HasSuffix(line, crlf) {
		return 0, buf, false
	}
	n, err := strconv.Atoi(string(line[1 : len(line)-len(crlf)]))
	if err != nil {
		return 0, buf, false
	}
	return n, buf[end+1:], true
}
