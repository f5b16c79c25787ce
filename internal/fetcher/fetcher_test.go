package fetcher

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketdata-cli/internal/resilience"
)

type brokenReader struct{ after string }

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.after == "" {
		return 0, errors.New("connection reset")
	}
	n := copy(p, b.after)
	b.after = b.after[n:]
	return n, nil
}

type readerFetcher struct{ r io.Reader }

func (f readerFetcher) Download(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(f.r), nil
}

func (f readerFetcher) DownloadToFile(context.Context, string, string) (int64, error) {
	return 0, errors.New("not used")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "COTAHIST_D02012024.ZIP")

	n, err := writeFile(strings.NewReader("PK"), path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data))
}

func TestWriteFile_RemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.zip")

	_, err := writeFile(&brokenReader{after: "half of an archive"}, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher: write file")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestReadBody_ReadFailureIsTransient(t *testing.T) {
	_, err := ReadBody(context.Background(), readerFetcher{r: &brokenReader{}}, "https://example.test/x", 10)
	require.Error(t, err)

	var te *resilience.TransientError
	assert.True(t, errors.As(err, &te))
}
