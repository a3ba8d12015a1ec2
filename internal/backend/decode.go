package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// Compression suffixes recognised on object names.
const (
	SuffixGzip = ".gz"
	SuffixZstd = ".zst"
)

type decompressor func(io.Reader) (io.ReadCloser, error)

var decompressors = map[string]decompressor{
	SuffixGzip: func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	},
	SuffixZstd: func(r io.Reader) (io.ReadCloser, error) {
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	},
}

// CompressionFor returns the compression suffix of name, or "" when the
// name carries no recognised compression suffix.
func CompressionFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if _, ok := decompressors[ext]; ok {
		return ext
	}
	return ""
}

// decodeDocument decompresses r according to compression (a suffix from
// CompressionFor, or "") and decodes the JSON document it contains.
func decodeDocument(source, object string, r io.Reader, compression string) (core.Document, error) {
	if compression != "" {
		open, ok := decompressors[compression]
		if !ok {
			return nil, core.NewLoadError(source, object, core.ErrMalformedPayload,
				fmt.Errorf("unsupported compression %q", compression))
		}
		rc, err := open(r)
		if err != nil {
			return nil, core.NewLoadError(source, object, core.ErrMalformedPayload,
				fmt.Errorf("failed to decompress: %w", err))
		}
		defer func() { _ = rc.Close() }()
		r = rc
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc core.Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, ErrResponseTooLarge) {
			return nil, core.NewLoadError(source, object, core.ErrMalformedPayload, err)
		}
		return nil, core.NewLoadError(source, object, core.ErrMalformedPayload,
			fmt.Errorf("does not contain valid JSON: %w", err))
	}
	if doc == nil {
		return nil, core.NewLoadError(source, object, core.ErrMalformedPayload,
			fmt.Errorf("document is not a JSON object"))
	}
	return doc, nil
}
