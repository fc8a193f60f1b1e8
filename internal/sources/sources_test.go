package sources_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cired/directory/internal/sources"
	"github.com/cired/directory/internal/sources/local"
	"github.com/cired/directory/pkg/errors"
	pkgsources "github.com/cired/directory/pkg/sources"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "askCIRED.vcf"), "BEGIN:VCARD\nFN:Marie Dubois\nEND:VCARD\n")
	write(t, filepath.Join(dir, "nested", "deep", "askHAL.vcf"), "BEGIN:VCARD\nFN:Jean Martin\nEND:VCARD\n")
	write(t, filepath.Join(dir, "notes.txt"), "ignored")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty.vcf"), 0o755))

	srcs, err := sources.Discover([]string{
		filepath.Join(dir, "**", "*.vcf"),
		filepath.Join(dir, "askCIRED.vcf"),
	})
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	assert.Equal(t, "askCIRED", srcs[0].Origin())
	assert.Equal(t, "askHAL", srcs[1].Origin())

	batch, err := pkgsources.Fetch(context.Background(), srcs)
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, 1, batch.Records[1].Seq)
}

func TestDiscoverSkipsOutputDir(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	write(t, filepath.Join(dir, "askHAL.vcf"), "BEGIN:VCARD\nFN:Marie Dubois\nEND:VCARD\n")
	write(t, filepath.Join(out, "merged.vcf"), "BEGIN:VCARD\nFN:Marie Dubois\nEND:VCARD\n")
	write(t, filepath.Join(out, "public.vcf"), "BEGIN:VCARD\nFN:Marie Dubois\nEND:VCARD\n")

	pattern := filepath.Join(dir, "**", "*.vcf")
	all, err := sources.Files([]string{pattern})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	srcs, err := sources.Discover([]string{pattern}, out)
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	assert.Equal(t, "askHAL", srcs[0].Origin())

	files, err := sources.Files([]string{pattern}, "")
	require.NoError(t, err)
	assert.Len(t, files, 3, "an empty skip directory skips nothing")
}

func TestWithin(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"out", "out/public.vcf", true},
		{"out", "out/nested/.merged.vcf.tmp", true},
		{"out", "out", true},
		{"./out/", "out/public.vcf", true},
		{"out", "outbox/askHAL.vcf", false},
		{"out", "data/askHAL.vcf", false},
		{"data/out", "data/askHAL.vcf", false},
		{"", "out/public.vcf", false},
	}
	for _, tt := range tests {
		t.Run(tt.dir+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, sources.Within(filepath.FromSlash(tt.dir), filepath.FromSlash(tt.path)))
		})
	}
	assert.True(t, sources.Skipped([]string{"a", "out"}, filepath.Join("out", "x.vcf")))
	assert.False(t, sources.Skipped(nil, filepath.Join("out", "x.vcf")))
}

func TestOversizedLineIsNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "askHAL.vcf")
	write(t, path, "BEGIN:VCARD\nFN:Big Photo\nPHOTO:"+strings.Repeat("A", 5*1024*1024)+"\nEND:VCARD\n"+
		"BEGIN:VCARD\nFN:Good Record\nEND:VCARD\n")

	src := local.New(local.WithPath(path))
	require.NoError(t, src.Fetch(context.Background()))
	require.Len(t, src.Records(), 1)
	assert.Equal(t, "Good Record", src.Records()[0].FullName())
	require.Len(t, src.Diagnostics(), 1)
	assert.True(t, errors.IsFormat(src.Diagnostics()[0]))
}

func TestDiscoverInvalidPattern(t *testing.T) {
	_, err := sources.Discover([]string{"[unclosed"})
	assert.True(t, errors.IsValidationError(err))
}

func TestMissingFileIsFatal(t *testing.T) {
	src := local.New(local.WithPath(filepath.Join(t.TempDir(), "missing.vcf")))
	assert.Equal(t, "missing", src.Origin())

	err := src.Fetch(context.Background())
	assert.True(t, errors.IsIO(err))
}

func TestMatchAndRoots(t *testing.T) {
	patterns := []string{"data/**/*.vcf", "extra/askEmail.vcf"}
	assert.True(t, sources.Match(patterns, "data/2024/askHAL.vcf"))
	assert.True(t, sources.Match(patterns, "extra/askEmail.vcf"))
	assert.False(t, sources.Match(patterns, "data/readme.md"))
	assert.Equal(t, []string{"data", "extra"}, sources.Roots(patterns))
}
