package extract

import (
	"strings"
	"testing"
)

// crlf turns a readable fixture into wire format.
func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

const (
	plainPart = `--b1
Content-Type: text/plain; charset=utf-8

Please enter the following code for verification: 482913
`
	htmlPart = `--b1
Content-Type: text/html; charset=utf-8

<html><body><p>HTML says <b>111111</b></p></body></html>
`
	htmlPart2 = `--b1
Content-Type: text/html; charset=utf-8

<p>second html</p>
`
	multipartHeader = `From: no-reply@example.com
Subject: Your code
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

`
	closing = "--b1--\n"
)

func TestExtractBody_PlainTextWinsRegardlessOfOrder(t *testing.T) {
	d := newTestDecoder(t, nil)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "plain first", raw: multipartHeader + plainPart + htmlPart + closing},
		{name: "plain last", raw: multipartHeader + htmlPart + htmlPart2 + plainPart + closing},
		{name: "plain between", raw: multipartHeader + htmlPart + plainPart + htmlPart2 + closing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.ExtractBody(Parse(crlf(tt.raw)))
			if !strings.Contains(got, "verification: 482913") {
				t.Errorf("ExtractBody() = %q, want the text/plain part", got)
			}
			if strings.Contains(got, "<") {
				t.Errorf("ExtractBody() = %q, returned markup", got)
			}
		})
	}
}

func TestExtractBody_FirstHTMLPartStripped(t *testing.T) {
	d := newTestDecoder(t, nil)

	got := d.ExtractBody(Parse(crlf(multipartHeader + htmlPart + htmlPart2 + closing)))
	if got != "HTML says 111111" {
		t.Errorf("ExtractBody() = %q, want %q", got, "HTML says 111111")
	}
}

func TestExtractBody_SinglePart(t *testing.T) {
	d := newTestDecoder(t, nil)

	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{
			name: "utf-8 plain",
			raw:  crlf("From: a@example.com\nContent-Type: text/plain; charset=utf-8\n\nline one\nline two\n"),
			want: "line one\r\nline two\r\n",
		},
		{
			name: "latin-1 declared",
			raw:  append(crlf("Content-Type: text/plain; charset=iso-8859-1\n\n"), 'c', 'a', 'f', 0xe9),
			want: "café",
		},
		{
			name: "quoted-printable",
			raw:  crlf("Content-Type: text/plain; charset=utf-8\nContent-Transfer-Encoding: quoted-printable\n\nGr=C3=BC=C3=9Fe: 4829=\n13\n"),
			want: "Grüße: 482913\r\n",
		},
		{
			name: "base64",
			raw:  crlf("Content-Type: text/plain\nContent-Transfer-Encoding: base64\n\nY29kZTogMTIzNA==\n"),
			want: "code: 1234",
		},
		{
			name: "html is returned unchanged",
			raw:  crlf("Content-Type: text/html\n\n<p>hi</p>"),
			want: "<p>hi</p>",
		},
		{
			name: "no content type",
			raw:  crlf("Subject: bare\n\nbare body"),
			want: "bare body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Parse(tt.raw)
			if msg.Multipart {
				t.Fatal("Parse() reported multipart for a single-part message")
			}
			if got := d.ExtractBody(msg); got != tt.want {
				t.Errorf("ExtractBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractBody_SkipsAttachments(t *testing.T) {
	d := newTestDecoder(t, nil)

	raw := `From: a@example.com
Content-Type: multipart/mixed; boundary="b1"

--b1
Content-Type: text/plain
Content-Disposition: attachment; filename="codes.txt"

Please enter the following code for verification: 999999
--b1
Content-Type: text/html

<div>verification inline</div>
--b1--
`
	got := d.ExtractBody(Parse(crlf(raw)))
	if got != "verification inline" {
		t.Errorf("ExtractBody() = %q, want the inline html part", got)
	}
}

func TestExtractBody_NestedMultipart(t *testing.T) {
	d := newTestDecoder(t, nil)

	raw := `From: a@example.com
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/html

<p>html</p>
--inner
Content-Type: text/plain; charset=iso-8859-1
Content-Transfer-Encoding: quoted-printable

caf=E9 code
--inner--
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="a.pdf"

%PDF
--outer--
`
	msg := Parse(crlf(raw))
	if !msg.Multipart {
		t.Fatal("Parse() did not report multipart")
	}
	if len(msg.Parts) != 3 {
		t.Fatalf("Parse() returned %d leaf parts, want 3", len(msg.Parts))
	}
	if !msg.Parts[2].Attachment || msg.Parts[2].Payload != nil {
		t.Errorf("attachment part = %+v, want unread attachment", msg.Parts[2])
	}

	if got := d.ExtractBody(msg); got != "café code" {
		t.Errorf("ExtractBody() = %q, want %q", got, "café code")
	}
}

func TestExtractBody_NoSuitablePart(t *testing.T) {
	d := newTestDecoder(t, nil)

	raw := `Content-Type: multipart/mixed; boundary="b1"

--b1
Content-Type: image/png
Content-Transfer-Encoding: base64

iVBORw0KGgo=
--b1--
`
	if got := d.ExtractBody(Parse(crlf(raw))); got != "" {
		t.Errorf("ExtractBody() = %q, want empty", got)
	}
	if got := d.ExtractBody(nil); got != "" {
		t.Errorf("ExtractBody(nil) = %q, want empty", got)
	}
	if got := d.ExtractBody(&Message{Multipart: true}); got != "" {
		t.Errorf("ExtractBody(empty) = %q, want empty", got)
	}
}

func TestParse_UnreadableHeader(t *testing.T) {
	raw := []byte("this line has no colon\r\n\r\nbody")
	msg := Parse(raw)
	if msg.Multipart || len(msg.Parts) != 1 {
		t.Fatalf("Parse() = %+v, want a single part", msg)
	}
	if string(msg.Parts[0].Payload) != string(raw) {
		t.Errorf("payload = %q, want the raw input", msg.Parts[0].Payload)
	}
}

func TestParse_PartFields(t *testing.T) {
	msg := Parse(crlf(multipartHeader + plainPart + htmlPart + closing))
	if len(msg.Parts) != 2 {
		t.Fatalf("Parse() returned %d parts, want 2", len(msg.Parts))
	}
	if msg.Parts[0].ContentType != "text/plain" || msg.Parts[0].Charset != "utf-8" {
		t.Errorf("part 0 = %q/%q", msg.Parts[0].ContentType, msg.Parts[0].Charset)
	}
	if msg.Parts[1].ContentType != "text/html" {
		t.Errorf("part 1 content type = %q", msg.Parts[1].ContentType)
	}
}
