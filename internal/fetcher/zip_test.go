package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestOpenZIPSingle(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"COTAHIST_D02012024.TXT": "00COTAHIST.2024\r\n",
	})

	rc, name, err := OpenZIPSingle(zipPath)
	require.NoError(t, err)
	assert.Equal(t, "COTAHIST_D02012024.TXT", name)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "00COTAHIST.2024\r\n", string(data))
	require.NoError(t, rc.Close())
}

func TestOpenZIPSingle_IgnoresDirectories(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"dir/":         "",
		"dir/data.txt": "payload",
	})

	rc, name, err := OpenZIPSingle(zipPath)
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck
	assert.Equal(t, "dir/data.txt", name)
}

func TestOpenZIPSingle_MultipleFiles(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"a.txt": "a",
		"b.txt": "b",
	})

	_, _, err := OpenZIPSingle(zipPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exactly 1 file, got 2")
}

func TestOpenZIPSingle_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("<html>maintenance</html>"), 0o644))

	_, _, err := OpenZIPSingle(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip: open archive")
}
