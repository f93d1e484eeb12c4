package collection

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/kjk/docstore/atomicfile"
	"github.com/kjk/docstore/siser"
)

const metaVersion = 1

// fileMeta is persisted in a "<path>.meta" sidecar next to a flat file.
// Slot geometry isn't stored in the data file itself, so without the
// sidecar reopening with different parameters would misparse it.
type fileMeta struct {
	MaxByteLength   int64
	GrowthIncrement int64
	Layout          Layout
	Codec           string
}

func metaPath(path string) string {
	return path + ".meta"
}

func (m *fileMeta) marshal() ([]byte, error) {
	var r siser.Record
	err := r.Write(
		"version", metaVersion,
		"max_byte_length", m.MaxByteLength,
		"growth_increment", m.GrowthIncrement,
		"layout", m.Layout.String(),
		"codec", m.Codec,
	)
	if err != nil {
		return nil, err
	}
	return r.Marshal(), nil
}

func unmarshalMeta(d []byte) (*fileMeta, error) {
	var r siser.Record
	if err := r.Unmarshal(d); err != nil {
		return nil, err
	}
	ver, err := r.GetInt64("version")
	if err != nil {
		return nil, err
	}
	if ver != metaVersion {
		return nil, fmt.Errorf("unsupported version %d", ver)
	}
	m := &fileMeta{}
	if m.MaxByteLength, err = r.GetInt64("max_byte_length"); err != nil {
		return nil, err
	}
	if m.GrowthIncrement, err = r.GetInt64("growth_increment"); err != nil {
		return nil, err
	}
	if m.MaxByteLength <= 0 || m.GrowthIncrement <= 0 {
		return nil, fmt.Errorf("invalid max_byte_length %d or growth_increment %d", m.MaxByteLength, m.GrowthIncrement)
	}
	layout, _ := r.Get("layout")
	if m.Layout, err = parseLayout(layout); err != nil {
		return nil, err
	}
	var ok bool
	if m.Codec, ok = r.Get("codec"); !ok || m.Codec == "" {
		return nil, fmt.Errorf("missing codec")
	}
	return m, nil
}

// readMeta returns nil, nil if the sidecar doesn't exist
func readMeta(path string) (*fileMeta, error) {
	mp := metaPath(path)
	d, err := os.ReadFile(mp)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m, err := unmarshalMeta(d)
	if err != nil {
		return nil, fmt.Errorf("invalid '%s': %s: %w", mp, err, ErrCorrupted)
	}
	return m, nil
}

func writeMeta(path string, m *fileMeta) error {
	d, err := m.marshal()
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(metaPath(path), d, 0644)
}

func (m *fileMeta) String() string {
	return "max_byte_length=" + strconv.FormatInt(m.MaxByteLength, 10) +
		" growth_increment=" + strconv.FormatInt(m.GrowthIncrement, 10) +
		" layout=" + m.Layout.String() + " codec=" + m.Codec
}
