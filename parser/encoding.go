package parser

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// DecodeText decodes raw as enc, substituting the Unicode replacement
// character for invalid sequences instead of failing. Field parsing and
// the decode package's registry-driven string decoder share this policy.
func DecodeText(enc string, raw []byte) string {
	return decodeWithEncoding(enc, raw)
}

// ascii and utf8 are handled directly; latin1 and the two utf16 byte
// orders go through golang.org/x/text/encoding.
func decodeWithEncoding(enc string, raw []byte) string {
	switch strings.ToLower(enc) {
	case "", "utf8", "utf-8":
		return decodeUTF8WithReplacement(raw)
	case "ascii", "us-ascii":
		return decodeASCII(raw)
	}

	var dec *encoding.Decoder
	switch strings.ToLower(enc) {
	case "latin1", "iso-8859-1", "iso8859-1":
		dec = charmap.ISO8859_1.NewDecoder()
	case "utf16le":
		dec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	case "utf16be":
		dec = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	default:
		return decodeUTF8WithReplacement(raw)
	}

	out, err := dec.String(string(raw))
	if err != nil {
		return decodeUTF8WithReplacement([]byte(out))
	}
	return out
}

func decodeASCII(raw []byte) string {
	runes := make([]rune, len(raw))
	for i, b := range raw {
		if b < 0x80 {
			runes[i] = rune(b)
		} else {
			runes[i] = utf8.RuneError
		}
	}
	return string(runes)
}

func decodeUTF8WithReplacement(raw []byte) string {
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}
