package vcard

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const crlf = "\r\n"

// Serialize writes records to w, one BEGIN/END block each, with CRLF line
// endings. Lines are not folded.
func Serialize(w io.Writer, records ...*Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := bw.WriteString(r.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Marshal returns the serialized form of records.
func Marshal(records ...*Record) []byte {
	var buf bytes.Buffer
	_ = Serialize(&buf, records...) // writes to a bytes.Buffer never fail
	return buf.Bytes()
}

// String returns the serialized record.
func (r *Record) String() string {
	var b strings.Builder
	b.WriteString("BEGIN:VCARD" + crlf)
	if r.Version != "" {
		b.WriteString(PropVersion + ":" + r.Version + crlf)
	}
	for _, p := range r.props {
		b.WriteString(p.String())
		b.WriteString(crlf)
	}
	b.WriteString("END:VCARD" + crlf)
	return b.String()
}

// String returns the content line without line ending.
func (p Property) String() string {
	var b strings.Builder
	if p.Group != "" {
		b.WriteString(p.Group)
		b.WriteByte('.')
	}
	b.WriteString(p.Name)
	for _, param := range p.Params {
		b.WriteByte(';')
		b.WriteString(param.Name)
		if len(param.Values) == 0 {
			continue
		}
		b.WriteByte('=')
		for i, v := range param.Values {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(quoteParam(v))
		}
	}
	b.WriteByte(':')
	b.WriteString(p.Value)
	return b.String()
}

func quoteParam(v string) string {
	if strings.ContainsAny(v, ":;,") {
		return `"` + v + `"`
	}
	return v
}

// Escape escapes a TEXT value for the wire form.
func Escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`, ",", `\,`, ";", `\;`)
	return r.Replace(s)
}

// Unescape reverses Escape. Unknown escapes keep the escaped character.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// SplitStructured splits a structured value (N, ADR, ORG) on unescaped
// semicolons and unescapes each component.
func SplitStructured(value string) []string {
	var (
		parts []string
		last  int
	)
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '\\':
			i++
		case ';':
			parts = append(parts, Unescape(value[last:i]))
			last = i + 1
		}
	}
	return append(parts, Unescape(value[last:]))
}
