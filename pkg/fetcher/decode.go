package fetcher

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"
)

// DecodeText returns body as a string, treating it as UTF-8 when valid and as
// ISO-8859-1 otherwise.
func DecodeText(body []byte) string {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	if utf8.Valid(body) {
		return string(body)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
	if err != nil {
		return string(bytes.ToValidUTF8(body, []byte("�")))
	}
	return string(out)
}

// DecodeHTML converts an HTML body to UTF-8 using the Content-Type header, a BOM
// or a <meta charset> declaration. It returns the converted body and the name
// of the detected encoding.
func DecodeHTML(body []byte, contentType string) ([]byte, string) {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		if utf8.Valid(body) {
			return body, name
		}
		return bytes.ToValidUTF8(body, []byte("�")), name
	}
	out, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return []byte(DecodeText(body)), "iso-8859-1"
	}
	return out, name
}
