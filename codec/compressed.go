package codec

import (
	"fmt"

	"github.com/kjk/docstore/u"
)

// Compressed compresses the output of Inner with zstd or brotli.
// Compressed bytes can end with any byte so use it with the prefixed
// flat-file layout or a directory collection.
type Compressed struct {
	Inner Codec
	Algo  u.CompressAlgo
}

func (c Compressed) Marshal(v any) ([]byte, error) {
	d, err := c.Inner.Marshal(v)
	if err != nil {
		return nil, err
	}
	return u.Compress(c.Algo, d)
}

func (c Compressed) Unmarshal(data []byte, v any) error {
	d, err := u.Decompress(c.Algo, data)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Name(), err)
	}
	return c.Inner.Unmarshal(d, v)
}

func (c Compressed) Name() string {
	return c.Inner.Name() + "+" + string(c.Algo)
}
