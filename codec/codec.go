// Package codec turns documents into bytes and back.
//
// A collection records the name of its codec next to the data (see the
// flat-file .meta sidecar), so changing the codec of an existing collection
// is detected on open instead of misparsing stored records.
package codec

import (
	"strings"

	"github.com/kjk/docstore/u"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Default is the codec used when a collection doesn't specify one
var Default Codec = JSON{}

// ByName returns a built-in codec by its stable name.
// Compressed codecs are named "<inner>+<algo>", e.g. "json+zstd".
func ByName(name string) (Codec, bool) {
	if inner, algo, ok := strings.Cut(name, "+"); ok {
		c, ok := ByName(inner)
		if !ok {
			return nil, false
		}
		switch u.CompressAlgo(algo) {
		case u.AlgoZstd, u.AlgoBrotli:
			return Compressed{Inner: c, Algo: u.CompressAlgo(algo)}, true
		}
		return nil, false
	}
	switch name {
	case "json":
		return JSON{}, true
	case "json-pretty":
		return PrettyJSON{}, true
	}
	return nil, false
}
