package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cired/directory/pkg/authority"
	"github.com/cired/directory/pkg/provenance"
	"github.com/cired/directory/pkg/vcard"
)

func prop(t *testing.T, line string) vcard.Property {
	t.Helper()
	p, err := vcard.ParseProperty(line)
	require.NoError(t, err)
	return p
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  CIRED ", "CIRED"},
		{"HTTPS://HAL.Science/X", "https://hal.science/x"},
		{"mailto:Marie@CIRED.fr", "mailto:marie@cired.fr"},
		{"Marie@CIRED.fr", "Marie@CIRED.fr"},
		{"Note: Keep Case", "Note: Keep Case"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeValue(tt.in))
		})
	}
}

func TestMultiKey(t *testing.T) {
	a := prop(t, "URL;TYPE=work,ORCID:https://orcid.org/1")
	b := prop(t, "url;type=orcid;TYPE=WORK:HTTPS://ORCID.ORG/1")
	c := prop(t, "URL:https://orcid.org/1")
	assert.Equal(t, multiKey(a), multiKey(b))
	assert.NotEqual(t, multiKey(a), multiKey(c))

	public := prop(t, "X-CONSENT;LEVEL=public;GRANTED=2024-01-01:FN")
	members := prop(t, "X-CONSENT;LEVEL=members;GRANTED=2024-01-01:FN")
	assert.NotEqual(t, multiKey(public), multiKey(members))
}

func TestSourceOrderStrategy(t *testing.T) {
	s := NewSourceOrderStrategy(authority.Ranking{"askCIRED", "askHAL"})
	assert.Equal(t, StrategyTypeSourceOrder, s.Type())
	assert.Equal(t, "Source Order", s.Type().Name())
	assert.Contains(t, s.Description(), "askCIRED")

	res := s.ResolveConflict("ORG", []Candidate{
		{Origin: "askCIRED", Property: prop(t, "ORG:CNRS")},
		{Origin: "askHAL", Property: prop(t, "ORG:CIRED")},
	})
	assert.Equal(t, 0, res.Winner)
	assert.Equal(t, provenance.ReasonPriority, res.Reason)
	assert.False(t, res.Unresolved)

	res = s.ResolveConflict("ORG", []Candidate{
		{Origin: "askCIRED", Seq: 1, Property: prop(t, "ORG:CNRS")},
		{Origin: "askCIRED", Seq: 4, Property: prop(t, "ORG:CIRED")},
	})
	assert.True(t, res.Unresolved)
	assert.Equal(t, provenance.ReasonTieBreak, res.Reason)
}

func TestAuthorityStrategy(t *testing.T) {
	s := NewAuthorityStrategy(authority.New(
		authority.Field{Path: "ORG", Origin: "askHAL", Priority: 50},
		authority.Field{Path: "ORG", Origin: "askREPEC", Priority: 50},
	), authority.Ranking{"askCIRED"})
	assert.Equal(t, StrategyTypeFieldAuthority, s.Type())

	res := s.ResolveConflict("ORG", []Candidate{
		{Origin: "askCIRED", Property: prop(t, "ORG:CIRED")},
		{Origin: "askHAL", Property: prop(t, "ORG:CNRS")},
	})
	assert.Equal(t, 1, res.Winner)
	assert.False(t, res.Unresolved)

	res = s.ResolveConflict("ORG", []Candidate{
		{Origin: "askHAL", Property: prop(t, "ORG:CNRS")},
		{Origin: "askREPEC", Property: prop(t, "ORG:PSE")},
	})
	assert.Equal(t, 0, res.Winner)
	assert.True(t, res.Unresolved, "equal priorities do not separate the candidates")

	res = s.ResolveConflict("TITLE", []Candidate{
		{Origin: "askCIRED", Property: prop(t, "TITLE:A")},
		{Origin: "askHAL", Property: prop(t, "TITLE:B")},
	})
	assert.Equal(t, 0, res.Winner)
	assert.Equal(t, provenance.ReasonPriority, res.Reason)
}

func TestContributorOrder(t *testing.T) {
	c := newCollector(authority.Ranking{"askCIRED", "askHAL"})
	mk := func(origin string, seq int) *vcard.Record {
		r := vcard.New()
		r.Origin, r.Seq = origin, seq
		return r
	}
	ordered := c.contributors([]*vcard.Record{
		mk("others", 0), mk("askHAL", 3), mk("askEmail", 1), mk("askCIRED", 4), mk("askHAL", 2),
	})

	got := make([]string, len(ordered))
	for i, r := range ordered {
		got[i] = r.Origin
	}
	assert.Equal(t, []string{"askCIRED", "askHAL", "askHAL", "askEmail", "others"}, got)
	assert.Equal(t, 2, ordered[1].Seq)
}

func TestValidate(t *testing.T) {
	r := vcard.New()
	r.Append(vcard.Property{Name: vcard.PropEmail, Value: "x@y.fr"})
	r.Seal()

	v := Validate(Canonical{Key: "k", Record: r})
	assert.True(t, v.IsValid())
	assert.True(t, v.HasWarnings())
	assert.Equal(t, "Validation passed with 1 warnings", v.String())

	r.Append(vcard.Property{Name: vcard.PropFN, Value: "changed"})
	v = Validate(Canonical{Key: "k", Record: r})
	assert.False(t, v.IsValid())
	assert.Equal(t, []string{"k: UID: does not match record content"}, v.Messages())

	assert.False(t, Validate(Canonical{Key: "k"}).IsValid())
}
