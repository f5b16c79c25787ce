package fetcher

import (
	"archive/zip"
	"io"

	"github.com/rotisserie/eris"
)

// zipEntryReader closes the archive together with the entry.
type zipEntryReader struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (z *zipEntryReader) Close() error {
	entryErr := z.ReadCloser.Close()
	archiveErr := z.archive.Close()
	if entryErr != nil {
		return eris.Wrap(entryErr, "zip: close entry")
	}
	if archiveErr != nil {
		return eris.Wrap(archiveErr, "zip: close archive")
	}
	return nil
}

// OpenZIPSingle opens the only file inside a ZIP archive for streaming.
// Directory entries are ignored. Closing the returned reader closes the archive.
func OpenZIPSingle(zipPath string) (io.ReadCloser, string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, "", eris.Wrap(err, "zip: open archive")
	}

	var files []*zip.File
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}

	if len(files) != 1 {
		_ = r.Close()
		return nil, "", eris.Errorf("zip: expected exactly 1 file, got %d", len(files))
	}

	rc, err := files[0].Open()
	if err != nil {
		_ = r.Close()
		return nil, "", eris.Wrap(err, "zip: open entry")
	}

	return &zipEntryReader{ReadCloser: rc, archive: r}, files[0].Name, nil
}
