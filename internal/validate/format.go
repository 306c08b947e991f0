package validate

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	json "github.com/goccy/go-json"

	"github.com/roach88/archetype/internal/ir"
)

// minAddressLength is the structural minimum for the address format.
const minAddressLength = 10

var hexColorRe = regexp.MustCompile(`^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`)

// checkStringFormat applies the named structural check to s.
func checkStringFormat(format ir.StringFormat, s string) error {
	switch format {
	case ir.FormatJSON:
		if !json.Valid([]byte(s)) {
			return errors.New("malformed JSON")
		}
	case ir.FormatHTML, ir.FormatXML:
		return checkMarkup(s)
	case ir.FormatHexColor:
		if !hexColorRe.MatchString(s) {
			return errors.New("expected #rgb or #rrggbb")
		}
	case ir.FormatAddress:
		if utf8.RuneCountInString(s) < minAddressLength {
			return fmt.Errorf("shorter than %d characters", minAddressLength)
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}

// checkMarkup requires s to be well-formed when wrapped in a synthetic root
// element. HTML is held to the same well-formedness as XML.
func checkMarkup(s string) error {
	dec := xml.NewDecoder(strings.NewReader("<root>" + s + "</root>"))
	dec.Strict = true

	depth := 0
	closed := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if closed {
				return errors.New("content after root element")
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				closed = true
			}
		case xml.CharData:
			if closed && strings.TrimSpace(string(t)) != "" {
				return errors.New("content after root element")
			}
		}
	}
	if !closed {
		return errors.New("unterminated markup")
	}
	return nil
}
