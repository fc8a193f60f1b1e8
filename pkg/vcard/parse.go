package vcard

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/cired/directory/pkg/errors"
)

// maxLineSize bounds a single physical line. Photos embedded as base64 are the
// largest values collectors emit.
const maxLineSize = 4 * 1024 * 1024

var nameRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ParseOption configures Parse.
type ParseOption func(*parseOptions)

type parseOptions struct {
	firstSeq int
}

// WithFirstSeq sets the arrival sequence number of the first parsed record.
// Callers parsing several streams use it to keep sequence numbers global.
func WithFirstSeq(seq int) ParseOption {
	return func(o *parseOptions) {
		o.firstSeq = seq
	}
}

// logicalLine is an unfolded content line with the physical line it started on.
type logicalLine struct {
	text    string
	line    int
	tooLong bool // text exceeded maxLineSize and was discarded
}

// Parse reads every record from r and tags them with origin.
//
// Malformed records are skipped and reported as *errors.FormatError in the
// returned slice; parsing continues with the next record. A failure to read r
// is reported as a trailing *errors.IOError, which callers should treat as
// fatal.
func Parse(r io.Reader, origin string, opts ...ParseOption) ([]*Record, []error) {
	o := &parseOptions{}
	for _, opt := range opts {
		opt(o)
	}

	lines, readErr := unfold(r)

	p := &parser{origin: origin, seq: o.firstSeq}
	for _, l := range lines {
		p.feed(l)
	}
	p.finish()

	if readErr != nil {
		p.errs = append(p.errs, errors.NewIOError("read", origin, readErr))
	}
	return p.records, p.errs
}

// ParseString parses records from a string.
func ParseString(s, origin string, opts ...ParseOption) ([]*Record, []error) {
	return Parse(strings.NewReader(s), origin, opts...)
}

// unfold joins continuation lines (leading space or tab) onto the preceding
// logical line. Empty lines are dropped. A line longer than maxLineSize is
// consumed and kept as a marker so the parser can reject its record.
func unfold(r io.Reader) ([]logicalLine, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		lines []logicalLine
		n     int
	)
	for {
		text, tooLong, err := readLine(br)
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
		n++
		if tooLong {
			lines = append(lines, logicalLine{line: n, tooLong: true})
			continue
		}
		if text == "" {
			continue
		}
		if (text[0] == ' ' || text[0] == '\t') && len(lines) > 0 {
			last := &lines[len(lines)-1]
			if last.tooLong {
				continue
			}
			if len(last.text)+len(text) > maxLineSize {
				last.text, last.tooLong = "", true
				continue
			}
			last.text += text[1:]
			continue
		}
		lines = append(lines, logicalLine{text: text, line: n})
	}
}

// readLine reads one physical line without its terminator. The rest of a line
// longer than maxLineSize is skipped and tooLong is set. It returns io.EOF
// only when no byte was left to read.
func readLine(br *bufio.Reader) (string, bool, error) {
	var (
		buf     []byte
		read    bool
		tooLong bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		read = read || len(chunk) > 0
		if !tooLong {
			buf = append(buf, chunk...)
			if len(buf) > maxLineSize {
				buf, tooLong = nil, true
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == io.EOF && read:
			// last line without a terminator
		case err != nil:
			return "", false, err
		}
		return strings.TrimSuffix(strings.TrimSuffix(string(buf), "\n"), "\r"), tooLong, nil
	}
}

type parser struct {
	origin  string
	seq     int
	records []*Record
	errs    []error

	current *Record
	start   int
	bad     bool
}

func (p *parser) feed(l logicalLine) {
	if l.tooLong {
		switch {
		case p.current == nil:
			p.fail(l.line, fmt.Sprintf("line exceeds %d bytes outside of a record", maxLineSize))
		case !p.bad:
			p.fail(l.line, fmt.Sprintf("line exceeds %d bytes", maxLineSize))
			p.bad = true
		}
		return
	}
	trimmed := strings.TrimSpace(l.text)
	switch {
	case strings.EqualFold(trimmed, "BEGIN:VCARD"):
		if p.current != nil {
			p.fail(l.line, "nested BEGIN:VCARD")
			p.current = nil
		}
		p.current = &Record{Origin: p.origin}
		p.start = l.line
		p.bad = false

	case strings.EqualFold(trimmed, "END:VCARD"):
		if p.current == nil {
			p.fail(l.line, "END:VCARD without matching BEGIN")
			return
		}
		if !p.bad {
			p.current.Seq = p.seq
			p.seq++
			p.records = append(p.records, p.current)
		}
		p.current = nil

	case p.current == nil:
		p.fail(l.line, "content outside of a record")

	case p.bad:
		// skip the rest of a record already reported

	default:
		prop, err := ParseProperty(l.text)
		if err != nil {
			p.fail(l.line, err.Error())
			p.bad = true
			return
		}
		if prop.Is(PropVersion) {
			p.current.Version = prop.Value
			return
		}
		p.current.Append(prop)
	}
}

func (p *parser) finish() {
	if p.current != nil {
		p.fail(p.start, "unterminated record: missing END:VCARD")
		p.current = nil
	}
}

func (p *parser) fail(line int, message string) {
	p.errs = append(p.errs, errors.NewFormatError(p.origin, line, message))
}

// ParseProperty parses one unfolded content line.
func ParseProperty(line string) (Property, error) {
	colon := indexUnquoted(line, ':')
	if colon < 0 {
		return Property{}, fmt.Errorf("property line without ':'")
	}
	head, value := line[:colon], line[colon+1:]

	parts := splitUnquoted(head, ';')
	var prop Property

	name := parts[0]
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		prop.Group, name = name[:dot], name[dot+1:]
		if !nameRe.MatchString(prop.Group) {
			return Property{}, fmt.Errorf("invalid group %q", prop.Group)
		}
	}
	if !nameRe.MatchString(name) {
		return Property{}, fmt.Errorf("invalid property name %q", name)
	}
	prop.Name = name
	prop.Value = value

	for _, raw := range parts[1:] {
		param, err := parseParam(raw)
		if err != nil {
			return Property{}, err
		}
		prop.Params = append(prop.Params, param)
	}
	return prop, nil
}

func parseParam(raw string) (Param, error) {
	eq := strings.IndexByte(raw, '=')
	if eq < 0 {
		// vCard 2.1 bare parameter, e.g. "TEL;HOME:"
		if !nameRe.MatchString(raw) {
			return Param{}, fmt.Errorf("malformed parameter %q", raw)
		}
		return Param{Name: raw}, nil
	}

	name := raw[:eq]
	if !nameRe.MatchString(name) {
		return Param{}, fmt.Errorf("malformed parameter %q", raw)
	}

	param := Param{Name: name}
	for _, v := range splitUnquoted(raw[eq+1:], ',') {
		if strings.HasPrefix(v, `"`) {
			if len(v) < 2 || !strings.HasSuffix(v, `"`) {
				return Param{}, fmt.Errorf("unterminated quote in parameter %q", name)
			}
			v = v[1 : len(v)-1]
		} else if strings.Contains(v, `"`) {
			return Param{}, fmt.Errorf("stray quote in parameter %q", name)
		}
		param.Values = append(param.Values, v)
	}
	return param, nil
}

// indexUnquoted returns the index of the first sep outside double quotes.
func indexUnquoted(s string, sep byte) int {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case sep:
			if !quoted {
				return i
			}
		}
	}
	return -1
}

// splitUnquoted splits s on sep, ignoring separators inside double quotes.
func splitUnquoted(s string, sep byte) []string {
	var parts []string
	quoted := false
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case sep:
			if !quoted {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	return append(parts, s[last:])
}
