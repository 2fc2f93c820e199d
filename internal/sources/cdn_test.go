package sources

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modkit/installer/internal/xxh"
)

func gzipJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err = gw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func TestCdnHandlerAssemblesPartsInOrder(t *testing.T) {
	partA := []byte("AAAA")
	partB := []byte("BBBBBBBB")
	full := append(append([]byte{}, partA...), partB...)

	def := cdnDefinition{
		MungedName: "mod.archive",
		Hash:       xxh.EncodeBytes(full),
		Size:       int64(len(full)),
		Parts: []cdnPart{
			{Index: 1, Size: int64(len(partB)), Hash: xxh.EncodeBytes(partB), Offset: int64(len(partA))},
			{Index: 0, Size: int64(len(partA)), Hash: xxh.EncodeBytes(partA), Offset: 0},
		},
	}
	defGz := gzipJSON(t, def)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/definition.json.gz":
			w.Write(defGz)
		case "/parts/0":
			w.Write(partA)
		case "/parts/1":
			w.Write(partB)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	h := NewCdnHandler(srv.Client())
	h.MirrorMap = nil // no host remap needed against httptest's loopback host

	res, err := h.Fetch(context.Background(), Request{Source: Cdn{BaseURL: srv.URL}, DestinationDir: dir}, nil)
	require.NoError(t, err)
	require.Equal(t, KindDownloaded, res.Kind)

	got, err := os.ReadFile(filepath.Join(dir, "mod.archive"))
	require.NoError(t, err)
	require.Equal(t, full, got)
}

func TestCdnHandlerRejectsPartHashMismatch(t *testing.T) {
	part := []byte("real-bytes")
	def := cdnDefinition{
		MungedName: "mod.archive",
		Hash:       xxh.EncodeBytes(part),
		Size:       int64(len(part)),
		Parts: []cdnPart{
			{Index: 0, Size: int64(len(part)), Hash: "wrongwrongw=", Offset: 0},
		},
	}
	defGz := gzipJSON(t, def)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/definition.json.gz":
			w.Write(defGz)
		case "/parts/0":
			w.Write(part)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	h := NewCdnHandler(srv.Client())
	h.MirrorMap = nil

	_, err := h.Fetch(context.Background(), Request{Source: Cdn{BaseURL: srv.URL}, DestinationDir: dir}, nil)
	require.Error(t, err)
	if _, statErr := os.Stat(filepath.Join(dir, "mod.archive")); !os.IsNotExist(statErr) {
		t.Error("destination file should be removed after a part hash mismatch")
	}
}

func TestFetchPartURLFormat(t *testing.T) {
	got := fmt.Sprintf("%s/parts/%d", "https://base", 3)
	want := "https://base/parts/3"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}
