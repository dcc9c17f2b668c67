package charset

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"UTF-8", "utf-8", "ISO-8859-1", "windows-1252", "latin1", "Shift_JIS", "UTF-16LE"} {
		if _, err := Lookup(name); err != nil {
			t.Errorf("Lookup(%q): %v", name, err)
		}
	}
	for _, name := range []string{"", "  ", "no-such-charset"} {
		if _, err := Lookup(name); !errors.Is(err, ErrUnknown) {
			t.Errorf("Lookup(%q) err = %v, want ErrUnknown", name, err)
		}
	}
}

func TestDecodingReader_Latin1(t *testing.T) {
	raw := []byte{'c', 'a', 'f', 0xE9}
	r, err := NewDecodingReader(bytes.NewReader(raw), "ISO-8859-1")
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "café" {
		t.Fatalf("got %q", got)
	}
}

func TestDecodingReader_SplitMultiByte(t *testing.T) {
	text := strings.Repeat("ab", 10) + "日本語テキスト"
	utf16, err := EncodeString(text, "UTF-16LE")
	if err != nil {
		t.Fatal(err)
	}
	// one byte per read forces every code unit to straddle a read boundary
	r, err := NewDecodingReader(iotest.OneByteReader(bytes.NewReader(utf16)), "UTF-16LE")
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != text {
		t.Fatalf("got %q, want %q", got, text)
	}
}

func TestUTF8PassThrough(t *testing.T) {
	if !IsUTF8("utf8") {
		t.Fatalf("utf8 alias should resolve to UTF-8")
	}
	src := bytes.NewReader([]byte("x"))
	r, err := NewDecodingReader(src, "UTF-8")
	if err != nil {
		t.Fatal(err)
	}
	if r != io.Reader(src) {
		t.Fatalf("UTF-8 should not wrap the reader")
	}
	b, err := EncodeString("ünïcode", "UTF-8")
	if err != nil || string(b) != "ünïcode" {
		t.Fatalf("EncodeString UTF-8 = %q, %v", b, err)
	}
}

func TestEncodeString_Unrepresentable(t *testing.T) {
	if _, err := EncodeString("日本", "ISO-8859-1"); err == nil {
		t.Fatalf("expected error encoding CJK into latin1")
	}
}
