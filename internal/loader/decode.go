package loader

import (
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/ianaindex"
)

// decode converts raw file bytes to a UTF-8 string. Valid UTF-8 passes
// through; otherwise the charset is detected and decoded, with lossy
// replacement of invalid sequences as the final fallback so a single bad
// file never aborts a batch.
func decode(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	if detected, err := chardet.NewTextDetector().DetectBest(raw); err == nil {
		if enc, err := ianaindex.IANA.Encoding(detected.Charset); err == nil && enc != nil {
			if decoded, err := enc.NewDecoder().Bytes(raw); err == nil && utf8.Valid(decoded) {
				return string(decoded), nil
			}
		}
	}

	return strings.ToValidUTF8(string(raw), string(utf8.RuneError)), nil
}
