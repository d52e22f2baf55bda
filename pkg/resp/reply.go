package resp

import (
	"bufio"
	"strconv"
)

// Reply is an encodable protocol reply.
type Reply interface {
	// AppendTo appends the wire encoding of the reply to dst.
	AppendTo(dst []byte) []byte
}

// SimpleString is a "+..." status reply.
type SimpleString string

// ErrorReply is a "-..." error reply. The text carries its own prefix (e.g. "ERR ").
type ErrorReply string

// Integer is a ":N" reply.
type Integer int64

// BulkString is a "$len" reply carrying a value.
type BulkString string

// Array is a "*N" reply of nested replies.
type Array []Reply

type nullBulk struct{}

// Common replies.
var (
	OK       Reply = SimpleString("OK")
	NullBulk Reply = nullBulk{}
)

func (s SimpleString) AppendTo(dst []byte) []byte {
	dst = append(dst, '+')
	dst = append(dst, s...)
	return append(dst, '\r', '\n')
}

func (e ErrorReply) AppendTo(dst []byte) []byte {
	dst = append(dst, '-')
	dst = append(dst, e...)
	return append(dst, '\r', '\n')
}

// Error implements error so an ErrorReply read by a client can be returned directly.
func (e ErrorReply) Error() string { return string(e) }

func (n Integer) AppendTo(dst []byte) []byte {
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, int64(n), 10)
	return append(dst, '\r', '\n')
}

func (b BulkString) AppendTo(dst []byte) []byte {
	dst = append(dst, '$')
	dst = strconv.AppendInt(dst, int64(len(b)), 10)
	dst = append(dst, '\r', '\n')
	dst = append(dst, b...)
	return append(dst, '\r', '\n')
}

func (nullBulk) AppendTo(dst []byte) []byte {
	return append(dst, "$-1\r\n"...)
}

func (a Array) AppendTo(dst []byte) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(len(a)), 10)
	dst = append(dst, '\r', '\n')
	for _, item := range a {
		dst = item.AppendTo(dst)
	}
	return dst
}

// Encode returns the wire encoding of r.
func Encode(r Reply) []byte {
	return r.AppendTo(nil)
}

// Write writes the encoding of r to w without flushing.
func Write(w *bufio.Writer, r Reply) error {
	_, err := w.Write(r.AppendTo(make([]byte, 0, 64)))
	return err
}

// BulkArray builds an array reply of bulk strings.
func BulkArray(values []string) Array {
	out := make(Array, len(values))
	for i, v := range values {
		out[i] = BulkString(v)
	}
	return out
}

// EncodeCommand encodes a command and its arguments as a request frame.
func EncodeCommand(name string, args ...string) []byte {
	frame := make([]byte, 0, 16+len(name)+8*len(args))
	frame = append(frame, '*')
	frame = strconv.AppendInt(frame, int64(len(args)+1), 10)
	frame = append(frame, '\r', '\n')
	frame = BulkString(name).AppendTo(frame)
	for _, a := range args {
		frame = BulkString(a).AppendTo(frame)
	}
	return frame
}
