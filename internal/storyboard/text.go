package storyboard

import (
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold converts s to the Windows-1252 bytes the core fonts expect.
func fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if c, ok := charmap.Windows1252.EncodeRune(r); ok {
			b.WriteByte(c)
			continue
		}
		stripped, _, err := transform.String(stripMarks, string(r))
		if err != nil {
			b.WriteByte('?')
			continue
		}
		for _, sr := range stripped {
			if c, ok := charmap.Windows1252.EncodeRune(sr); ok {
				b.WriteByte(c)
			} else {
				b.WriteByte('?')
			}
		}
	}
	return b.String()
}

var unsafeName = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "-",
	"?", "", "\"", "", "<", "", ">", "", "|", "",
)

// FileName turns a storyboard title into a safe PDF file name.
func FileName(title string) string {
	name := strings.Join(strings.Fields(unsafeName.Replace(title)), " ")
	name = strings.Trim(name, ". -")
	if name == "" {
		name = "storyboard"
	}
	return name + ".pdf"
}
