package batch

import (
	"encoding/json"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

// ManifestName is the archive entry listing failed items.
const ManifestName = "failures.json"

// Archive writes every successful output into a zip stream, followed by a
// failures.json manifest (an empty list when nothing failed).
func (j *Job) Archive(w io.Writer) error {
	zw := zip.NewWriter(w)

	for _, o := range j.Outcomes {
		if !o.OK() {
			continue
		}
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:   o.FileName(j.Output.Format),
			Method: storeMethod(j.Output.Format.Compressed()),
		})
		if err != nil {
			return errors.Wrapf(err, "archive item %d", o.Index)
		}
		if _, err := f.Write(o.Output); err != nil {
			return errors.Wrapf(err, "archive item %d", o.Index)
		}
	}

	failures := j.Failures()
	if failures == nil {
		failures = []imgerr.Failure{}
	}
	m, err := zw.Create(ManifestName)
	if err != nil {
		return errors.Wrap(err, "archive manifest")
	}
	enc := json.NewEncoder(m)
	enc.SetIndent("", "  ")
	if err := enc.Encode(failures); err != nil {
		return errors.Wrap(err, "archive manifest")
	}

	return errors.Wrap(zw.Close(), "finish archive")
}

// storeMethod skips deflate for payloads that are already compressed.
func storeMethod(compressed bool) uint16 {
	if compressed {
		return zip.Store
	}
	return zip.Deflate
}
