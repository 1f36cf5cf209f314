package patents

import (
	"encoding/xml"
	"io"
	"strings"
)

// ExtractTableNodes returns the raw markup of every <table> element in
// the document, in document order. The slices are taken verbatim from
// the input text so nested formatting elements (<sub>, <b>, ...) reach
// the transcriber byte-for-byte. A parse error stops the scan and
// returns whatever complete tables were found before it; a malformed
// document must never abort the batch.
func ExtractTableNodes(xmlText string) []string {
	dec := xml.NewDecoder(strings.NewReader(xmlText))
	// Patent XML in the wild carries undeclared entities and loose
	// markup; keep scanning instead of failing the document.
	dec.Strict = false

	var (
		tables []string
		depth  int
		start  int64
	)
	for {
		before := dec.InputOffset()
		tok, err := dec.Token()
		if err != nil {
			if err != io.EOF {
				return tables
			}
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "table" {
				if depth == 0 {
					start = before
				}
				depth++
			}
		case xml.EndElement:
			if t.Name.Local == "table" && depth > 0 {
				depth--
				if depth == 0 {
					tables = append(tables, xmlText[start:dec.InputOffset()])
				}
			}
		}
	}
	return tables
}
