// Package printer turns receipt text into an ESC/POS command stream and
// ships it to a named printer in raw passthrough mode through an external
// spooler helper.
package printer

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/meeteat/pos/internal/apperr"
)

// ESC/POS control bytes.
const (
	esc = 0x1b
	gs  = 0x1d
)

var (
	cmdInit        = []byte{esc, '@'}
	cmdAlignLeft   = []byte{esc, 'a', 0}
	cmdAlignCenter = []byte{esc, 'a', 1}
	cmdSizeDouble  = []byte{gs, '!', 0x11}
	cmdSizeNormal  = []byte{gs, '!', 0x00}
	cmdBoldOn      = []byte{esc, 'E', 1}
	cmdBoldOff     = []byte{esc, 'E', 0}
	cmdFullCut     = []byte{gs, 'V', 0}
)

const crlf = "\r\n"

// DefaultFeedLines is the paper fed before the cut.
const DefaultFeedLines = 4

// CodePage names a device character table.
type CodePage string

const (
	// CodePageUTF8 sends text bytes untouched.
	CodePageUTF8 CodePage = ""
	CodePage437  CodePage = "cp437"
	CodePage858  CodePage = "cp858"
)

type codePageTable struct {
	n   byte // ESC t n
	enc encoding.Encoding
}

var codePages = map[CodePage]codePageTable{
	CodePage437: {n: 0, enc: charmap.CodePage437},
	CodePage858: {n: 19, enc: charmap.CodePage858},
}

// ValidCodePage reports whether cp is supported.
func ValidCodePage(cp CodePage) bool {
	if cp == CodePageUTF8 {
		return true
	}
	_, ok := codePages[cp]
	return ok
}

// Job is one receipt print.
type Job struct {
	Title     string // centered, double size, bold
	Body      string // preformatted receipt lines
	Closing   string // centered
	FeedLines int
	CodePage  CodePage
}

// Build returns the device command stream for j: initialize, branding,
// left-aligned body, centered closing, feed and full cut.
func Build(j Job) ([]byte, error) {
	encode := func(s string) ([]byte, error) { return []byte(s), nil }
	var buf bytes.Buffer
	buf.Write(cmdInit)

	if j.CodePage != CodePageUTF8 {
		table, ok := codePages[j.CodePage]
		if !ok {
			return nil, apperr.Newf(apperr.InvalidInput, "unknown code page %q", j.CodePage)
		}
		buf.Write([]byte{esc, 't', table.n})
		enc := encoding.ReplaceUnsupported(table.enc.NewEncoder())
		encode = func(s string) ([]byte, error) { return enc.Bytes([]byte(s)) }
	}

	write := func(s string) error {
		b, err := encode(s)
		if err != nil {
			return fmt.Errorf("encode receipt text: %w", err)
		}
		buf.Write(b)
		return nil
	}

	buf.Write(cmdAlignCenter)
	buf.Write(cmdSizeDouble)
	buf.Write(cmdBoldOn)
	if err := write(j.Title + crlf); err != nil {
		return nil, err
	}
	buf.Write(cmdSizeNormal)
	buf.Write(cmdBoldOff)

	buf.Write(cmdAlignLeft)
	if err := write(j.Body); err != nil {
		return nil, err
	}

	buf.Write(cmdAlignCenter)
	if err := write(j.Closing + crlf); err != nil {
		return nil, err
	}

	feed := j.FeedLines
	if feed <= 0 {
		feed = DefaultFeedLines
	}
	buf.Write([]byte{esc, 'd', byte(min(feed, 255))})
	buf.Write(cmdFullCut)
	return buf.Bytes(), nil
}
