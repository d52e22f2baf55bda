package output

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/memkv/pkg/resp"
)

// YAMLFormatter formats data as YAML.
type YAMLFormatter struct{}

// Format formats data as YAML.
func (f *YAMLFormatter) Format(w io.Writer, data any) error {
	if r, ok := data.(resp.Reply); ok {
		data = ReplyValue(r)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}
