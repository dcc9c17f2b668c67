// Package charset resolves character set names to golang.org/x/text encodings
// and builds streaming decoders and encoders from them.
package charset

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUnknown is returned for names no index recognizes.
var ErrUnknown = errors.New("unknown charset")

// Lookup resolves an IANA or WHATWG charset name.
func Lookup(name string) (encoding.Encoding, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnknown)
	}
	if enc, err := ianaindex.IANA.Encoding(n); err == nil && enc != nil {
		return enc, nil
	}
	if enc, err := htmlindex.Get(n); err == nil && enc != nil {
		return enc, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
}

// IsUTF8 reports whether name resolves to UTF-8, in which case bytes pass through untouched.
func IsUTF8(name string) bool {
	enc, err := Lookup(name)
	return err == nil && enc == unicode.UTF8
}

// NewDecodingReader returns a reader yielding UTF-8 decoded from r in the named charset.
// Multi-byte sequences split across reads are carried over by the transformer.
func NewDecodingReader(r io.Reader, name string) (io.Reader, error) {
	enc, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if enc == unicode.UTF8 {
		return r, nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// EncodeString encodes UTF-8 text s into the named charset.
func EncodeString(s, name string) ([]byte, error) {
	enc, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if enc == unicode.UTF8 {
		return []byte(s), nil
	}
	out, _, err := transform.String(enc.NewEncoder(), s)
	if err != nil {
		return nil, fmt.Errorf("encode as %s: %w", name, err)
	}
	return []byte(out), nil
}
