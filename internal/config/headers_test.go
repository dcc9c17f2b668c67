package config

import (
	"reflect"
	"testing"
)

func TestParseHeaders_RoundTrip(t *testing.T) {
	cases := []map[string]string{
		{},
		{"Accept": "application/json"},
		{"Authorization": "Bearer a:b:c", "X-Empty": "", "x-lower": "v"},
	}
	for _, want := range cases {
		s := ""
		for k, v := range want {
			if s != "" {
				s += "\n"
			}
			s += k + ":" + v
		}
		if got := ParseHeaders(s); !reflect.DeepEqual(got, want) {
			t.Fatalf("round trip of %q: got %v want %v", s, got, want)
		}
		c := validConfig()
		c.RequestHeaders = s
		if fs := c.Validate(); len(fs) != 0 {
			t.Fatalf("well-formed headers %q produced failures %v", s, fs)
		}
	}
}

func TestParseHeaders_SkipsMalformedLines(t *testing.T) {
	got := ParseHeaders("A:1\ngarbage\n:novalue\r\nB:2\r\n\n")
	want := map[string]string{"A": "1", "B": "2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestValidate_OneFailurePerMalformedLine(t *testing.T) {
	c := validConfig()
	c.RequestHeaders = "A:1\nfirst\nB:2\nsecond\n\nthird"
	fs := c.Validate()
	if len(fs) != 4 {
		t.Fatalf("expected 4 failures (3 bad lines plus the blank line), got %v", fs)
	}
	for _, f := range fs {
		if f.Field != FieldRequestHeaders {
			t.Fatalf("unexpected field %s", f.Field)
		}
	}
}
