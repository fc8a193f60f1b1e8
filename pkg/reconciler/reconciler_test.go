package reconciler_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cired/directory/pkg/authority"
	"github.com/cired/directory/pkg/consent"
	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/identity"
	"github.com/cired/directory/pkg/logging"
	"github.com/cired/directory/pkg/reconciler"
	"github.com/cired/directory/pkg/vcard"
)

var asOf = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

// record builds a raw record from content lines.
func record(t *testing.T, origin string, seq int, lines ...string) *vcard.Record {
	t.Helper()
	r := vcard.New()
	r.Origin = origin
	r.Seq = seq
	for _, line := range lines {
		p, err := vcard.ParseProperty(line)
		require.NoError(t, err)
		r.Append(p)
	}
	return r
}

// lines returns the content lines of a record without framing and UID.
func lines(r *vcard.Record) []string {
	var out []string
	for _, l := range strings.Split(strings.TrimSpace(r.String()), "\r\n") {
		if l == "BEGIN:VCARD" || l == "END:VCARD" || strings.HasPrefix(l, "UID:") {
			continue
		}
		out = append(out, l)
	}
	return out
}

func newReconciler(t *testing.T, opts ...reconciler.Option) reconciler.Reconciler {
	t.Helper()
	opts = append([]reconciler.Option{reconciler.WithAsOf(asOf)}, opts...)
	r, err := reconciler.New(opts...)
	require.NoError(t, err)
	return r
}

func TestOriginPriorityConflict(t *testing.T) {
	r := newReconciler(t, reconciler.WithRanking("askCIRED", "askHAL"))
	group := identity.Group{Key: "marie dubois", Records: []*vcard.Record{
		record(t, "askHAL", 0, "FN:Marie Dubois", "ORG:CIRED", "EMAIL:marie@cired.fr", "NOTE:HAL profile"),
		record(t, "askCIRED", 1, "FN:Marie Dubois", "ORG:CNRS", "EMAIL:marie@cired.fr"),
	}}

	canonicals, err := r.Group(group)
	require.NoError(t, err)
	require.Len(t, canonicals, 1)

	c := canonicals[0]
	assert.Equal(t, "marie dubois", c.Key)
	assert.Equal(t, []string{
		"VERSION:4.0",
		"FN:Marie Dubois",
		"ORG:CNRS",
		"EMAIL:marie@cired.fr",
		"NOTE;X-ORIGIN=askHAL:HAL profile",
		"X-ORIGIN:askCIRED",
		"X-ORIGIN:askHAL",
		"X-CONFLICT;PROPERTY=ORG;ORIGIN=askHAL;SELECTED=askCIRED:CIRED",
	}, lines(c.Record))
	assert.Equal(t, c.Record.ID(), c.Record.UID())

	require.Len(t, c.Conflicts, 1)
	assert.Equal(t, "CIRED", c.Conflicts[0].Value)
	assert.Equal(t, "askHAL", c.Conflicts[0].Origin)
	assert.Equal(t, "CNRS", c.Conflicts[0].Selected)
	assert.False(t, c.Conflicts[0].Unresolved)
	assert.Empty(t, c.Errors)
	assert.Equal(t, []string{"askCIRED", "askHAL"}, c.Origins)
}

func TestMultiValuedUnion(t *testing.T) {
	r := newReconciler(t, reconciler.WithRanking("askHAL", "askREPEC"))
	group := identity.Group{Key: "anne aubert", Records: []*vcard.Record{
		record(t, "askREPEC", 0,
			"FN:Anne Aubert",
			"SOURCE:HTTPS://IDEAS.REPEC.ORG/e/pau1.html",
			"SOURCE:https://hal.science/anne-aubert",
		),
		record(t, "askHAL", 1,
			"FN:Anne Aubert",
			"SOURCE:https://hal.science/anne-aubert ",
			"SOURCE:https://ideas.repec.org/e/pau1.html",
			"URL;TYPE=ORCID:https://orcid.org/0000-0002",
			"URL:https://orcid.org/0000-0002",
		),
	}}

	canonicals, err := r.Group(group)
	require.NoError(t, err)

	rec := canonicals[0].Record
	sources := rec.All(vcard.PropSource)
	require.Len(t, sources, 2)
	assert.Equal(t, "https://hal.science/anne-aubert ", sources[0].Value, "first occurrence wins")
	assert.Equal(t, "https://ideas.repec.org/e/pau1.html", sources[1].Value)

	assert.Len(t, rec.All(vcard.PropURL), 2, "TYPE parameters are part of the identity")
	assert.Empty(t, canonicals[0].Conflicts)
}

func TestArrivalOrderIndependent(t *testing.T) {
	r := newReconciler(t, reconciler.WithRanking("askCIRED", "askHAL", "askREPEC"))
	records := []*vcard.Record{
		record(t, "askREPEC", 0, "FN:Jean Dupont", "ORG:PSE", "EMAIL:jd@pse.fr"),
		record(t, "askHAL", 1, "FN:Jean  Dupont", "ORG:CNRS", "NOTE:from hal"),
		record(t, "askCIRED", 2, "FN:Jean Dupont", "TITLE:Researcher"),
		record(t, "askHAL", 3, "EMAIL:jean.dupont@cnrs.fr"),
	}
	reversed := []*vcard.Record{records[3], records[2], records[1], records[0]}

	a, err := r.Group(identity.Group{Key: "jean dupont", Records: records})
	require.NoError(t, err)
	b, err := r.Group(identity.Group{Key: "jean dupont", Records: reversed})
	require.NoError(t, err)

	assert.Equal(t, string(vcard.Marshal(a[0].Record)), string(vcard.Marshal(b[0].Record)))
	assert.Equal(t, "FN:Jean Dupont", lines(a[0].Record)[1])
}

func TestMergeIdempotent(t *testing.T) {
	r := newReconciler(t, reconciler.WithRanking("askCIRED", "askHAL"))
	first, err := r.Group(identity.Group{Key: "marie dubois", Records: []*vcard.Record{
		record(t, "askCIRED", 0, "FN:Marie Dubois", "ORG:CNRS", "NOTE:cired page"),
		record(t, "askHAL", 1, "FN:Marie Dubois", "ORG:CIRED", "EMAIL:m@cired.fr"),
	}})
	require.NoError(t, err)
	canonical := first[0].Record

	again, err := r.Group(identity.Group{Key: "marie dubois", Records: []*vcard.Record{canonical, canonical.Clone()}})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, string(vcard.Marshal(canonical)), string(vcard.Marshal(again[0].Record)))
}

func TestUnresolvedConflict(t *testing.T) {
	t.Run("unranked origins", func(t *testing.T) {
		r := newReconciler(t)
		canonicals, err := r.Group(identity.Group{Key: "paul martin", Records: []*vcard.Record{
			record(t, "others", 0, "FN:Paul Martin", "ORG:EHESS"),
			record(t, "askEmail", 1, "FN:Paul Martin", "ORG:ENPC"),
		}})
		require.NoError(t, err)

		c := canonicals[0]
		assert.Equal(t, "ENPC", c.Record.Value(vcard.PropORG), "tie-break orders unranked origins by name")
		require.Len(t, c.Errors, 1)
		assert.True(t, errors.IsConflict(c.Errors[0]))
		require.Len(t, c.Conflicts, 1)
		assert.True(t, c.Conflicts[0].Unresolved)
		assert.Contains(t, lines(c.Record), "X-CONFLICT;PROPERTY=ORG;ORIGIN=others;SELECTED=askEmail;UNRESOLVED=TRUE:EHESS")
	})

	t.Run("same origin", func(t *testing.T) {
		r := newReconciler(t, reconciler.WithRanking("askHAL"))
		canonicals, err := r.Group(identity.Group{Key: "paul martin", Records: []*vcard.Record{
			record(t, "askHAL", 5, "FN:Paul Martin", "ORG:second"),
			record(t, "askHAL", 2, "FN:Paul Martin", "ORG:first"),
		}})
		require.NoError(t, err)
		assert.Equal(t, "first", canonicals[0].Record.Value(vcard.PropORG), "arrival order breaks the tie")
		assert.Len(t, canonicals[0].Errors, 1)
	})
}

func TestAuthorityOverridesRanking(t *testing.T) {
	r := newReconciler(t,
		reconciler.WithRanking("askCIRED", "askHAL"),
		reconciler.WithAuthorities(authority.New(
			authority.Field{Path: "TITLE", Origin: "askHAL", Priority: 100},
		)),
	)
	canonicals, err := r.Group(identity.Group{Key: "marie dubois", Records: []*vcard.Record{
		record(t, "askCIRED", 0, "FN:Marie Dubois", "TITLE:Engineer", "ORG:CIRED"),
		record(t, "askHAL", 1, "FN:Marie Dubois", "TITLE:Research Director", "ORG:CNRS"),
	}})
	require.NoError(t, err)

	rec := canonicals[0].Record
	assert.Equal(t, "Research Director", rec.Value("TITLE"))
	assert.Equal(t, "CIRED", rec.Value(vcard.PropORG), "properties without authority follow the ranking")
	require.Len(t, canonicals[0].Conflicts, 2)
	assert.Contains(t, canonicals[0].Conflicts[0].Resolution, "property authority")
}

func TestVisibilitySplit(t *testing.T) {
	r := newReconciler(t, reconciler.WithRanking("askCIRED", "askHAL"))
	canonicals, err := r.Group(identity.Group{Key: "marie dubois", Records: []*vcard.Record{
		record(t, "askCIRED", 0,
			"FN:Marie Dubois",
			`X-CONSENT;LEVEL=public;GRANTED="2024-01-01T00:00:00Z":FN`,
			`X-CONSENT;LEVEL=members;GRANTED="2024-01-01T00:00:00Z":FN,EMAIL`,
		),
		record(t, "askHAL", 1, "FN:Marie Dubois", "EMAIL:m@cnrs.fr"),
	}})
	require.NoError(t, err)
	require.Len(t, canonicals, 2)

	assert.Equal(t, "marie dubois#members+public", canonicals[0].Key)
	assert.Equal(t, []consent.Level{consent.Public, consent.Members}, canonicals[0].Levels)
	assert.Equal(t, "marie dubois#none", canonicals[1].Key)
	assert.Empty(t, canonicals[1].Levels)
	for _, c := range canonicals {
		assert.Equal(t, "marie dubois", c.Identity)
	}
	assert.False(t, canonicals[0].Record.Has(vcard.PropEmail))
	assert.Len(t, canonicals[0].Record.All(vcard.PropConsent), 2)
	assert.True(t, canonicals[0].Split)
	assert.Equal(t, []consent.Level{consent.Public, consent.Members}, canonicals[0].Exported)
	assert.Empty(t, canonicals[1].Exported)
}

func TestVisibilitySplitWithSidecar(t *testing.T) {
	granted := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	book := consent.NewBook(map[string][]consent.Grant{
		"marie dubois": {{Level: consent.Public, Fields: []vcard.Selector{{Name: "FN"}, {Name: "ORG"}}, GrantedAt: granted}},
	}, nil)

	t.Run("sidecar grants join every contributor", func(t *testing.T) {
		r := newReconciler(t, reconciler.WithRanking("askCIRED", "askHAL"), reconciler.WithBook(book))
		canonicals, err := r.Group(identity.Group{Key: "marie dubois", Records: []*vcard.Record{
			record(t, "askHAL", 0,
				"FN:Marie Dubois", "ORG:CNRS",
				`X-CONSENT;LEVEL=members;GRANTED=2024-01-01:FN,ORG`,
			),
			record(t, "askCIRED", 1, "FN:Marie Dubois", "ORG:CIRED"),
		}})
		require.NoError(t, err)
		require.Len(t, canonicals, 2)

		assert.Equal(t, "marie dubois#members+public", canonicals[0].Key)
		assert.Equal(t, "CNRS", canonicals[0].Record.Value(vcard.PropORG))
		assert.Equal(t, []consent.Level{consent.Members}, canonicals[0].Exported)

		assert.Equal(t, "marie dubois#public", canonicals[1].Key)
		assert.Equal(t, "CIRED", canonicals[1].Record.Value(vcard.PropORG))
		assert.Equal(t, []consent.Level{consent.Public}, canonicals[1].Exported,
			"the best-ranked origin decides the shared level")
	})

	t.Run("same level set keeps the group whole", func(t *testing.T) {
		r := newReconciler(t, reconciler.WithRanking("askCIRED", "askHAL"), reconciler.WithBook(book))
		canonicals, err := r.Group(identity.Group{Key: "marie dubois", Records: []*vcard.Record{
			record(t, "askHAL", 0,
				"FN:Marie Dubois", "ORG:CNRS",
				`X-CONSENT;LEVEL=public;GRANTED=2024-01-01:FN`,
			),
			record(t, "askCIRED", 1, "FN:Marie Dubois", "ORG:CIRED"),
		}})
		require.NoError(t, err)
		require.Len(t, canonicals, 1)
		assert.False(t, canonicals[0].Split)
		assert.Equal(t, "CIRED", canonicals[0].Record.Value(vcard.PropORG))
	})
}

func TestGroups(t *testing.T) {
	r := newReconciler(t, reconciler.WithRanking("askCIRED", "askHAL"), reconciler.WithWorkers(2))

	var groups []identity.Group
	for i, name := range []string{"anne", "bruno", "chloe", "david", "emma"} {
		groups = append(groups, identity.Group{Key: name, Records: []*vcard.Record{
			record(t, "askHAL", i*2, "FN:"+name, "ORG:CNRS"),
			record(t, "askCIRED", i*2+1, "FN:"+name, "ORG:CIRED"),
		}})
	}

	tl := logging.NewTestLogger(t)
	ctx := logging.WithLogger(context.Background(), tl.Logger)

	result, err := r.Groups(ctx, groups)
	require.NoError(t, err)
	require.Len(t, result.Canonicals, 5)
	for i, c := range result.Canonicals {
		assert.Equal(t, groups[i].Key, c.Key)
	}

	stats := result.Metadata.Stats
	assert.Equal(t, 5, stats.GroupsProcessed)
	assert.Equal(t, 10, stats.RecordsMerged)
	assert.Equal(t, 5, stats.CanonicalsProduced)
	assert.Equal(t, 5, stats.ConflictsResolved)
	assert.True(t, result.HasConflicts())
	assert.Len(t, result.Records(), 5)
	assert.NotEmpty(t, result.Provenance)
	assert.Contains(t, result.Summary(), "Merged 10 records from 5 groups into 5 canonical records")
	tl.AssertContains(t, "Merge completed")
}

func TestGroupsCancelled(t *testing.T) {
	r := newReconciler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Groups(ctx, []identity.Group{{Key: "a", Records: []*vcard.Record{record(t, "x", 0, "FN:A")}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmptyGroup(t *testing.T) {
	r := newReconciler(t)
	_, err := r.Group(identity.Group{Key: "nobody"})
	assert.True(t, errors.IsValidationError(err))
}

func TestOptionsValidation(t *testing.T) {
	_, err := reconciler.New(reconciler.WithWorkers(0))
	assert.Error(t, err)

	_, err = reconciler.New(reconciler.WithRanking("a", "a"))
	assert.Error(t, err)

	_, err = reconciler.New(reconciler.WithStrategy(nil))
	assert.Error(t, err)

	_, err = reconciler.New(reconciler.WithAuthorities(nil))
	assert.Error(t, err)
}

func TestCustomSingleValued(t *testing.T) {
	r := newReconciler(t, reconciler.WithSingleValued("FN"), reconciler.WithAttributed())
	canonicals, err := r.Group(identity.Group{Key: "x", Records: []*vcard.Record{
		record(t, "a", 0, "FN:X", "ORG:One", "NOTE:n"),
		record(t, "b", 1, "FN:X", "ORG:Two"),
	}})
	require.NoError(t, err)
	assert.Len(t, canonicals[0].Record.All(vcard.PropORG), 2)
	assert.Empty(t, canonicals[0].Conflicts)
	note, _ := canonicals[0].Record.Get(vcard.PropNote)
	assert.False(t, note.Params.Has(vcard.PropOrigin))
}
