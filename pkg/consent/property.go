package consent

import (
	"fmt"
	"strings"
	"time"

	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/vcard"
)

// Parameter names of an X-CONSENT line.
const (
	ParamLevel     = "LEVEL"
	ParamGranted   = "GRANTED"
	ParamMethod    = "METHOD"
	ParamSource    = "SOURCE"
	ParamWithdrawn = "WITHDRAWN"
	ParamExpires   = "EXPIRES"
)

// timeLayouts are accepted for consent timestamps. The basic ISO 8601 form
// needs no quoting inside vCard parameters.
var timeLayouts = []string{
	time.RFC3339,
	"20060102T150405Z",
	"2006-01-02",
}

// ParseTime parses a consent timestamp.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// FromProperty decodes one X-CONSENT line:
//
//	X-CONSENT;LEVEL=public;GRANTED="2024-01-01T00:00:00Z";METHOD=email;SOURCE=survey:FN,ORG,URL:ORCID
func FromProperty(p vcard.Property) (Grant, error) {
	var g Grant
	if !p.Is(vcard.PropConsent) {
		return g, errors.NewValidationError("property", p.Name, "not a consent line")
	}

	level, err := ParseLevel(p.Params.First(ParamLevel))
	if err != nil {
		return g, errors.WrapValidation(ParamLevel, err)
	}
	g.Level = level

	if g.GrantedAt, err = ParseTime(p.Params.First(ParamGranted)); err != nil {
		return g, errors.WrapValidation(ParamGranted, err)
	}
	if g.Withdrawn, err = optionalTime(p.Params, ParamWithdrawn); err != nil {
		return g, errors.WrapValidation(ParamWithdrawn, err)
	}
	if g.Expires, err = optionalTime(p.Params, ParamExpires); err != nil {
		return g, errors.WrapValidation(ParamExpires, err)
	}
	g.Method = p.Params.First(ParamMethod)
	g.Source = p.Params.First(ParamSource)

	if g.Fields, err = vcard.ParseSelectors(p.Text()); err != nil {
		return g, errors.WrapValidation("fields", err)
	}
	return g, nil
}

func optionalTime(params vcard.Params, name string) (*time.Time, error) {
	if !params.Has(name) {
		return nil, nil
	}
	t, err := ParseTime(params.First(name))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Property encodes the grant as an X-CONSENT line.
func (g Grant) Property() vcard.Property {
	params := vcard.Params{
		{Name: ParamLevel, Values: []string{g.Level.String()}},
		{Name: ParamGranted, Values: []string{formatTime(g.GrantedAt)}},
	}
	if g.Method != "" {
		params = append(params, vcard.Param{Name: ParamMethod, Values: []string{g.Method}})
	}
	if g.Source != "" {
		params = append(params, vcard.Param{Name: ParamSource, Values: []string{g.Source}})
	}
	if g.Withdrawn != nil {
		params = append(params, vcard.Param{Name: ParamWithdrawn, Values: []string{formatTime(*g.Withdrawn)}})
	}
	if g.Expires != nil {
		params = append(params, vcard.Param{Name: ParamExpires, Values: []string{formatTime(*g.Expires)}})
	}
	return vcard.Property{Name: vcard.PropConsent, Params: params, Value: g.FieldList()}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FromRecord builds the consent history carried by a record's X-CONSENT
// lines. Malformed lines are skipped and returned as errors.
func FromRecord(r *vcard.Record) (*History, []error) {
	h := &History{}
	var errs []error
	for _, p := range r.All(vcard.PropConsent) {
		g, err := FromProperty(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.String(), err))
			continue
		}
		h.Append(g)
	}
	return h, errs
}
