package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// Multi routes requests to a Fetcher chosen by URL scheme. History mirrors
// are sometimes published over FTP while the B3 APIs are HTTPS only.
type Multi struct {
	schemes map[string]Fetcher
}

// NewMulti builds a router over HTTP(S) and FTP.
func NewMulti(httpF, ftpF Fetcher) *Multi {
	return &Multi{schemes: map[string]Fetcher{
		"http":  httpF,
		"https": httpF,
		"ftp":   ftpF,
	}}
}

func (m *Multi) route(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	f, ok := m.schemes[u.Scheme]
	if !ok || f == nil {
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
	return f, nil
}

// Download implements Fetcher.
func (m *Multi) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := m.route(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile implements Fetcher.
func (m *Multi) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	f, err := m.route(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}
