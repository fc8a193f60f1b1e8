package export_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cired/directory/pkg/consent"
	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/export"
	"github.com/cired/directory/pkg/reconciler"
	"github.com/cired/directory/pkg/vcard"
)

var asOf = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

func canonical(t *testing.T, key string, lines ...string) reconciler.Canonical {
	t.Helper()
	r := vcard.New()
	for _, line := range lines {
		p, err := vcard.ParseProperty(line)
		require.NoError(t, err)
		r.Append(p)
	}
	r.Seal()
	return reconciler.Canonical{Key: key, Identity: key, Record: r}
}

func names(r *vcard.Record) []string {
	var out []string
	for _, p := range r.Properties() {
		out = append(out, p.Name)
	}
	return out
}

func TestWithdrawnPublicConsent(t *testing.T) {
	c := canonical(t, "marie dubois",
		"FN:Marie Dubois",
		"ORG:CIRED",
		"EMAIL:marie@cired.fr",
		`X-CONSENT;LEVEL=public;GRANTED=2024-01-01;WITHDRAWN=2024-03-01:FN,ORG`,
		`X-CONSENT;LEVEL=members;GRANTED=2024-01-01:FN,ORG,EMAIL`,
	)
	e := export.New(export.WithAsOf(asOf))

	_, ok := e.Export(c.Key, c.Record, consent.Public)
	assert.False(t, ok, "withdrawn public consent must not fall back to another level")

	members, ok := e.Export(c.Key, c.Record, consent.Members)
	require.True(t, ok)
	assert.Equal(t, []string{"FN", "ORG", "EMAIL"}, names(members))

	exports := e.Run([]reconciler.Canonical{c})
	assert.Empty(t, exports.Records(consent.Public))
	assert.Len(t, exports.Records(consent.Members), 1)
	assert.Empty(t, exports.Records(consent.Admin))
	assert.Empty(t, exports.NoActiveConsent)

	// before the withdrawal the public entry exists
	before := export.New(export.WithAsOf(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)))
	public, ok := before.Export(c.Key, c.Record, consent.Public)
	require.True(t, ok)
	assert.Equal(t, []string{"FN", "ORG"}, names(public))
}

func TestScheduledWithdrawal(t *testing.T) {
	c := canonical(t, "marie dubois",
		"FN:Marie Dubois",
		`X-CONSENT;LEVEL=public;GRANTED=2024-01-01;WITHDRAWN=2024-09-01:FN`,
	)

	before := export.New(export.WithAsOf(asOf)).Run([]reconciler.Canonical{c})
	assert.Len(t, before.Records(consent.Public), 1, "a withdrawal after as_of has not happened yet")

	after := export.New(export.WithAsOf(time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC))).
		Run([]reconciler.Canonical{c})
	assert.Empty(t, after.Records(consent.Public))
	require.Len(t, after.NoActiveConsent, 1)
	assert.Equal(t, export.ReasonInactive, after.NoActiveConsent[0].Reason)
}

func TestFieldMinimality(t *testing.T) {
	c := canonical(t, "marie dubois",
		"FN:Marie Dubois",
		"EMAIL:marie@cired.fr",
		"URL;TYPE=ORCID:https://orcid.org/0000-0001",
		"URL;TYPE=work:https://cired.fr/marie",
		"NOTE;X-ORIGIN=askHAL:HAL profile",
		`X-CONSENT;LEVEL=public;GRANTED=2024-01-01:FN,URL:orcid`,
	)
	e := export.New(export.WithAsOf(asOf))

	public, ok := e.Export(c.Key, c.Record, consent.Public)
	require.True(t, ok)
	assert.Equal(t, []string{"FN", "URL"}, names(public))
	assert.Equal(t, "https://orcid.org/0000-0001", public.Value(vcard.PropURL))
	assert.False(t, public.Has(vcard.PropUID))
	assert.False(t, public.Has(vcard.PropConsent))
	assert.Equal(t, vcard.DefaultVersion, public.Version)
}

func TestConsentIsolation(t *testing.T) {
	c := canonical(t, "jean martin",
		"FN:Jean Martin",
		"EMAIL:jean@cired.fr",
		`X-CONSENT;LEVEL=admin;GRANTED=2024-01-01;METHOD=form:FN,EMAIL`,
	)
	e := export.New(export.WithAsOf(asOf))
	exports := e.Run([]reconciler.Canonical{c})

	assert.Empty(t, exports.Records(consent.Public))
	assert.Empty(t, exports.Records(consent.Members))
	require.Len(t, exports.Records(consent.Admin), 1)

	admin := exports.Records(consent.Admin)[0]
	assert.Equal(t, []string{"FN", "EMAIL", "X-CONSENT"}, names(admin))
	p, _ := admin.Get(vcard.PropConsent)
	assert.Equal(t, `X-CONSENT;LEVEL=admin;GRANTED="2024-01-01T00:00:00Z";METHOD=form:FN,EMAIL`, p.String())
}

func TestNoActiveConsent(t *testing.T) {
	missing := canonical(t, "paul durand", "FN:Paul Durand")
	expired := canonical(t, "anne petit",
		"FN:Anne Petit",
		`X-CONSENT;LEVEL=public;GRANTED=2023-01-01;EXPIRES=2024-01-01:FN`,
	)
	future := canonical(t, "luc moreau",
		"FN:Luc Moreau",
		`X-CONSENT;LEVEL=public;GRANTED=2025-01-01:FN`,
	)

	exports := export.New(export.WithAsOf(asOf)).Run([]reconciler.Canonical{missing, expired, future})
	for _, level := range consent.Levels {
		assert.Empty(t, exports.Records(level), level.String())
	}

	require.Len(t, exports.NoActiveConsent, 3)
	assert.Equal(t, "paul durand", exports.NoActiveConsent[0].Key)
	assert.Equal(t, export.ReasonMissing, exports.NoActiveConsent[0].Reason)
	assert.True(t, errors.IsConsentMissing(exports.NoActiveConsent[0].Err))
	assert.Equal(t, export.ReasonInactive, exports.NoActiveConsent[1].Reason)
	assert.Equal(t, export.ReasonInactive, exports.NoActiveConsent[2].Reason)
	assert.NoError(t, exports.NoActiveConsent[1].Err)
}

func TestSidecarConsent(t *testing.T) {
	c := canonical(t, "marie dubois", "FN:Marie Dubois", "ORG:CIRED", "EMAIL:marie@cired.fr")
	c.Key = "marie dubois#none"

	byName, err := consent.ParseBook([]byte(`
Marie Dubois:
  - level: public
    fields: [FN, ORG]
    granted: "2024-01-01"
    method: email
  - level: admin
    fields: [FN, ORG, EMAIL]
    granted: "2024-01-01"
`))
	require.NoError(t, err)
	book := consent.NewBook(byName, func(name string) string { return "marie dubois" })

	e := export.New(export.WithAsOf(asOf), export.WithBook(book))
	exports := e.Run([]reconciler.Canonical{c})

	require.Len(t, exports.Records(consent.Public), 1)
	assert.Equal(t, []string{"FN", "ORG"}, names(exports.Records(consent.Public)[0]))
	assert.Empty(t, exports.Records(consent.Members))
	require.Len(t, exports.Records(consent.Admin), 1)
	admin := exports.Records(consent.Admin)[0]
	assert.Len(t, admin.All(vcard.PropConsent), 2)
	assert.False(t, c.Record.Has(vcard.PropConsent), "export never mutates the canonical record")
}

func TestSplitPartitionsExportOncePerLevel(t *testing.T) {
	byName, err := consent.ParseBook([]byte(`
Marie Dubois:
  - level: public
    fields: [FN, ORG]
    granted: "2024-01-01"
`))
	require.NoError(t, err)
	book := consent.NewBook(byName, func(string) string { return "marie dubois" })

	members := canonical(t, "marie dubois#members+public",
		"FN:Marie Dubois",
		"ORG:CNRS",
		`X-CONSENT;LEVEL=members;GRANTED=2024-01-01:FN,ORG`,
	)
	members.Identity = "marie dubois"
	members.Split = true
	members.Levels = []consent.Level{consent.Public, consent.Members}
	members.Exported = []consent.Level{consent.Members}

	public := canonical(t, "marie dubois#public", "FN:Marie Dubois", "ORG:CIRED")
	public.Identity = "marie dubois"
	public.Split = true
	public.Levels = []consent.Level{consent.Public}
	public.Exported = []consent.Level{consent.Public}

	exports := export.New(export.WithAsOf(asOf), export.WithBook(book)).Run([]reconciler.Canonical{members, public})

	require.Len(t, exports.Records(consent.Public), 1)
	assert.Equal(t, "CIRED", exports.Records(consent.Public)[0].Value(vcard.PropORG))
	require.Len(t, exports.Records(consent.Members), 1)
	assert.Equal(t, "CNRS", exports.Records(consent.Members)[0].Value(vcard.PropORG))
	assert.Empty(t, exports.NoActiveConsent, "a partition covered by a sibling is not reported")
}

func TestMalformedConsentLine(t *testing.T) {
	c := canonical(t, "marie dubois",
		"FN:Marie Dubois",
		`X-CONSENT;LEVEL=everyone;GRANTED=2024-01-01:FN`,
		`X-CONSENT;LEVEL=public;GRANTED=2024-01-01:FN`,
	)
	exports := export.New(export.WithAsOf(asOf)).Run([]reconciler.Canonical{c})
	assert.Len(t, exports.Errors, 1)
	assert.Len(t, exports.Records(consent.Public), 1)
}
