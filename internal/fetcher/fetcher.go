// Package fetcher downloads remote sources over HTTP(S) and FTP. Callers
// depend on the Fetcher interface; Multi picks the transport from the URL
// scheme so a source can move between protocols through configuration alone.
package fetcher

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketdata-cli/internal/resilience"
)

// ErrBodyTooShort is returned when a response body is not longer than the
// minimum viable length. B3 answers unknown keys with 200 and a tiny body.
var ErrBodyTooShort = errors.New("response body too short")

// Fetcher retrieves one remote object per call. Implementations make a
// single attempt and report failures as resilience.TransientError where the
// remote side is at fault.
type Fetcher interface {
	// Download opens the object at url. The caller closes the body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile spools the object at url to path and returns the bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// ReadBody downloads rawURL fully and rejects bodies of minBytes or fewer.
func ReadBody(ctx context.Context, f Fetcher, rawURL string, minBytes int) ([]byte, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetcher: read body from %s", rawURL), 0)
	}
	if len(data) <= minBytes {
		return nil, resilience.NewTransientError(eris.Wrapf(ErrBodyTooShort, "%d bytes from %s", len(data), rawURL), 0)
	}
	return data, nil
}

// writeFile copies r to a fresh file at path. A partial file is removed.
func writeFile(r io.Reader, path string) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}

	n, err := io.Copy(file, r)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}
