package directory

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/cired/directory/pkg/consent"
	"github.com/cired/directory/pkg/constants"
	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/logging"
	"github.com/cired/directory/pkg/save"
	"github.com/cired/directory/pkg/vcard"
)

// exportFiles maps each visibility level to its output file.
var exportFiles = map[consent.Level]string{
	consent.Public:  constants.PublicFile,
	consent.Members: constants.MembersFile,
	consent.Admin:   constants.AdminFile,
}

// save writes the canonical directory, the three exports, the passthrough
// file and the audit trail. Any write failure aborts the run.
func (p *pipeline) save(ctx context.Context, r *Result) error {
	if p.config.outputDir == "" {
		return &errors.ConfigError{
			Component: "output",
			Message:   "no output directory configured",
		}
	}
	logger := logging.FromContext(ctx)

	write := func(name string, records []*vcard.Record, perm fs.FileMode) error {
		path := filepath.Join(p.config.outputDir, name)
		if err := save.Write(records, save.WithPath(path), save.WithPerm(perm)); err != nil {
			return err
		}
		r.Outputs = append(r.Outputs, path)
		logger.Debug().Str("path", path).Int("records", len(records)).Msg("Wrote output")
		return nil
	}

	if err := write(constants.MergedFile, r.Merge.Records(), constants.PrivateFilePermissions); err != nil {
		return err
	}
	for _, level := range consent.Levels {
		var perm fs.FileMode = constants.PrivateFilePermissions
		if level == consent.Public {
			perm = constants.FilePermissions
		}
		if err := write(exportFiles[level], r.Exports.Records(level), perm); err != nil {
			return err
		}
	}
	if p.config.exclusionMode == ExclusionPassthrough {
		if err := write(constants.ExcludedFile, r.Excluded, constants.PrivateFilePermissions); err != nil {
			return err
		}
	}

	auditPath := filepath.Join(p.config.outputDir, constants.AuditFile)
	if err := r.Audit.Save(auditPath); err != nil {
		return err
	}
	r.Outputs = append(r.Outputs, auditPath)

	logger.Info().
		Str("dir", p.config.outputDir).
		Int("files", len(r.Outputs)).
		Msg("Outputs written")
	return nil
}
