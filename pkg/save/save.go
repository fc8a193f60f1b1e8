package save

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/cired/directory/pkg/constants"
	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/vcard"
)

// Write encodes v and writes it to the configured writer or path. FormatVCard
// expects []*vcard.Record; FormatYAML accepts any value. File writes go
// through a temporary file in the same directory and a rename, so readers
// never see a partial file.
func Write(v any, opts ...Option) error {
	o := Defaults().Apply(opts...)
	if !o.format.IsValid() {
		return errors.NewValidationError("format", o.format.String(), "unsupported output format")
	}

	data, err := encode(v, o)
	if err != nil {
		return err
	}

	if o.writer != nil {
		if _, err := o.writer.Write(data); err != nil {
			return errors.WrapIO("write", o.path, err)
		}
		return nil
	}
	if o.path == "" {
		return errors.NewValidationError("path", "", "no path or writer configured")
	}
	return atomicWrite(o.path, data, o.perm)
}

func encode(v any, o Options) ([]byte, error) {
	switch o.format {
	case FormatVCard:
		records, ok := v.([]*vcard.Record)
		if !ok {
			return nil, errors.NewValidationError("value", fmt.Sprintf("%T", v), "vCard output needs []*vcard.Record")
		}
		var buf bytes.Buffer
		if err := vcard.Serialize(&buf, records...); err != nil {
			return nil, errors.WrapIO("write", o.path, err)
		}
		return buf.Bytes(), nil
	default:
		data, err := yaml.MarshalWithOptions(v, yaml.Indent(2), yaml.IndentSequence(true))
		if err != nil {
			return nil, errors.WrapParse("yaml", o.path, err)
		}
		return data, nil
	}
}

func atomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.WrapIO("create", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapIO("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO("close", path, err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return errors.WrapIO("write", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}
