package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yndnr/memkv/pkg/resp"
)

// ReplyValue converts a reply into plain Go values: strings, int64, nil,
// []any, and map[string]string{"error": ...} for error replies.
func ReplyValue(r resp.Reply) any {
	switch v := r.(type) {
	case nil:
		return nil
	case resp.SimpleString:
		return string(v)
	case resp.BulkString:
		return string(v)
	case resp.Integer:
		return int64(v)
	case resp.ErrorReply:
		return map[string]string{"error": string(v)}
	case resp.Array:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = ReplyValue(item)
		}
		return out
	default:
		if r == resp.NullBulk {
			return nil
		}
		return fmt.Sprintf("%v", r)
	}
}

// RawFormatter prints replies the way redis-cli does. Other data falls
// back to a table.
type RawFormatter struct{}

// Format writes data.
func (f *RawFormatter) Format(w io.Writer, data any) error {
	r, ok := data.(resp.Reply)
	if !ok {
		return (&TableFormatter{}).Format(w, data)
	}
	var b strings.Builder
	writeRaw(&b, r, "")
	_, err := io.WriteString(w, b.String())
	return err
}

func writeRaw(b *strings.Builder, r resp.Reply, indent string) {
	switch v := r.(type) {
	case resp.SimpleString:
		b.WriteString(string(v))
	case resp.BulkString:
		b.WriteString(strconv.Quote(string(v)))
	case resp.Integer:
		b.WriteString("(integer) ")
		b.WriteString(strconv.FormatInt(int64(v), 10))
	case resp.ErrorReply:
		b.WriteString("(error) ")
		b.WriteString(string(v))
	case resp.Array:
		if len(v) == 0 {
			b.WriteString("(empty array)")
			break
		}
		width := len(strconv.Itoa(len(v)))
		for i, item := range v {
			if i > 0 {
				b.WriteString(indent)
			}
			label := fmt.Sprintf("%*d) ", width, i+1)
			b.WriteString(label)
			writeRaw(b, item, indent+strings.Repeat(" ", len(label)))
			if i < len(v)-1 {
				b.WriteByte('\n')
			}
		}
	default:
		b.WriteString("(nil)")
	}
	if indent == "" {
		b.WriteByte('\n')
	}
}
