package codec

import (
	gojson "github.com/goccy/go-json"
	"github.com/tidwall/pretty"
)

// JSON is a compact JSON codec backed by github.com/goccy/go-json.
// Its output never ends with a space, which the padded flat-file layout
// relies on.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) { return gojson.Marshal(v) }

func (JSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

func (JSON) Name() string { return "json" }

// PrettyJSON writes indented JSON, meant for directory collections where
// people read the files. It decodes any JSON.
type PrettyJSON struct{}

func (PrettyJSON) Marshal(v any) ([]byte, error) {
	d, err := gojson.Marshal(v)
	if err != nil {
		return nil, err
	}
	d = pretty.PrettyOptions(d, &pretty.Options{Width: 80, Indent: "  "})
	// pretty adds a trailing newline
	for len(d) > 0 && d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	return d, nil
}

func (PrettyJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

func (PrettyJSON) Name() string { return "json-pretty" }
