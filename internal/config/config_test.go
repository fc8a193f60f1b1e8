package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cired/directory/internal/config"
	"github.com/cired/directory/pkg/authority"
	"github.com/cired/directory/pkg/errors"
)

const configYAML = `
inputs:
  - data/**/*.vcf
output_dir: build
origins: [askCIRED, askHAL, askREPEC, askEmail, others]
authorities:
  - property: ORG
    origin: askHAL
    priority: 50
aliases:
  Marie Dubois-Martin: Marie Dubois
exclusion_file: blacklist.yaml
exclusion_mode: passthrough
consent_file: consent.yaml
as_of: "2024-06-01T00:00:00Z"
workers: 2
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	v, err := config.New(writeConfig(t, configYAML))
	require.NoError(t, err)

	s, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"data/**/*.vcf"}, s.Inputs)
	assert.Equal(t, "build", s.OutputDir)
	assert.Equal(t, []string{"askCIRED", "askHAL", "askREPEC", "askEmail", "others"}, s.Origins)
	assert.Equal(t, []authority.Field{{Path: "ORG", Origin: "askHAL", Priority: 50}}, s.Authorities)
	assert.Len(t, s.Aliases, 1)
	assert.True(t, s.Passthrough())
	assert.Equal(t, 2, s.Workers)

	asOf, err := s.Instant()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), asOf)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DIRECTORY_OUTPUT_DIR", "from-env")
	t.Setenv("DIRECTORY_ORIGINS", "askHAL, askCIRED")
	t.Setenv("DIRECTORY_INPUTS", "a/{askHAL,askCIRED}.vcf,b/*.vcf")

	v, err := config.New(writeConfig(t, configYAML))
	require.NoError(t, err)
	s, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, "from-env", s.OutputDir)
	assert.Equal(t, []string{"askHAL", "askCIRED"}, s.Origins)
	assert.Equal(t, []string{"a/{askHAL,askCIRED}.vcf", "b/*.vcf"}, s.Inputs)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"bad mode", "exclusion_mode: shred\n", "exclusion_mode"},
		{"bad workers", "workers: 0\n", "workers"},
		{"bad as_of", "as_of: yesterday\n", "as_of"},
		{"incomplete authority", "authorities:\n  - property: ORG\n", "authorities"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := config.New(writeConfig(t, tt.yaml))
			require.NoError(t, err)

			_, err = config.Load(v)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestMissingExplicitConfigFile(t *testing.T) {
	_, err := config.New(filepath.Join(t.TempDir(), "absent.yaml"))
	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	v, err := config.New("")
	require.NoError(t, err)
	s, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"*.vcf"}, s.Inputs)
	assert.Equal(t, "out", s.OutputDir)
	assert.False(t, s.Passthrough())
	assert.GreaterOrEqual(t, s.Workers, 1)
}
