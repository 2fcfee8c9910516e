package extract

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func newTestDecoder(t *testing.T, fallbacks []string) *Decoder {
	t.Helper()
	d, err := New(Options{Phrase: DefaultPhrase, Fallbacks: fallbacks})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func TestDecode(t *testing.T) {
	d := newTestDecoder(t, nil)

	tests := []struct {
		name     string
		payload  []byte
		declared string
		want     string
	}{
		{
			name:     "declared utf-8",
			payload:  []byte("Grüße 482913"),
			declared: "utf-8",
			want:     "Grüße 482913",
		},
		{
			name:     "declared latin-1",
			payload:  []byte{'c', 'a', 'f', 0xe9},
			declared: "ISO-8859-1",
			want:     "café",
		},
		{
			name:     "python style latin-1 label",
			payload:  []byte{'c', 'a', 'f', 0xe9},
			declared: "latin-1",
			want:     "café",
		},
		{
			name:     "declared windows-1252 smart quotes",
			payload:  []byte{0x93, 'h', 'i', 0x94},
			declared: "windows-1252",
			want:     "“hi”",
		},
		{
			name:     "no declared charset uses utf-8 first",
			payload:  []byte("plain ascii"),
			declared: "",
			want:     "plain ascii",
		},
		{
			name:     "unknown declared charset is skipped",
			payload:  []byte("hello"),
			declared: "x-no-such-charset",
			want:     "hello",
		},
		{
			name:     "wrong utf-8 declaration falls back to latin-1",
			payload:  []byte{'n', 0xe4, 'h', 'e'},
			declared: "utf-8",
			want:     "nähe",
		},
		{
			name:     "non-ascii under us-ascii falls back",
			payload:  []byte{0xfc, 'b', 'e', 'r'},
			declared: "us-ascii",
			want:     "über",
		},
		{
			name:     "quoted label",
			payload:  []byte{0xe9},
			declared: `"iso-8859-1"`,
			want:     "é",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Decode(tt.payload, tt.declared); got != tt.want {
				t.Errorf("Decode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecode_LossyWhenChainExhausted(t *testing.T) {
	d := newTestDecoder(t, []string{"utf-8"})

	got := d.Decode([]byte{'a', 0xff, 0xfe, 'b'}, "us-ascii")
	if got != "a��b" {
		t.Errorf("Decode() = %q, want one replacement per invalid byte", got)
	}
}

func TestDecode_NeverFails(t *testing.T) {
	payloads := [][]byte{
		nil,
		{},
		[]byte("ascii only"),
		{0xff, 0xfe, 0xfd},
		{0xe2, 0x82},
		{0x81, 0x8d, 0x8f, 0x90, 0x9d},
		[]byte("mixed \xc3\x28 bytes"),
	}
	declared := []string{"", "utf-8", "UTF-8", "us-ascii", "iso-8859-1", "windows-1252", "shift_jis", "gbk", "bogus", "  "}
	chains := [][]string{nil, {}, {"utf-8"}, {"us-ascii"}, {"windows-1252", "utf-8"}}

	for _, chain := range chains {
		d := newTestDecoder(t, chain)
		for _, cs := range declared {
			for _, p := range payloads {
				got := d.Decode(p, cs)
				if !utf8.ValidString(got) {
					t.Errorf("Decode(%q, %q) with chain %v returned invalid UTF-8 %q", p, cs, chain, got)
				}
			}
		}
	}
}

func TestNew_RejectsUnknownFallback(t *testing.T) {
	_, err := New(Options{Phrase: DefaultPhrase, Fallbacks: []string{"utf-8", "klingon-8"}})
	if err == nil {
		t.Fatal("expected error for unknown fallback charset")
	}
	if !errors.Is(err, ErrUnknownCharset) {
		t.Errorf("New() error = %v, want ErrUnknownCharset", err)
	}
	if !strings.Contains(err.Error(), "klingon-8") {
		t.Errorf("error %q does not name the charset", err)
	}
}

func TestNew_DefaultFallbacks(t *testing.T) {
	d := newTestDecoder(t, nil)
	got := d.Fallbacks()
	if strings.Join(got, ",") != strings.Join(DefaultFallbacks, ",") {
		t.Errorf("Fallbacks() = %v, want %v", got, DefaultFallbacks)
	}

	got[0] = "changed"
	if d.Fallbacks()[0] == "changed" {
		t.Error("Fallbacks() exposes internal slice")
	}
}
