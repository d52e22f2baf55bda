package output

import (
	"encoding/json"
	"io"

	"github.com/yndnr/memkv/pkg/resp"
)

// JSONFormatter formats data as JSON.
type JSONFormatter struct{}

// Format formats data as indented JSON.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	if r, ok := data.(resp.Reply); ok {
		data = ReplyValue(r)
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
