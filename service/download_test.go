package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/krau/vqaserve/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureModelFiles(t *testing.T) {
	var (
		mu   sync.Mutex
		hits []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/model.onnx":
			w.Write([]byte("onnx"))
		case "/repo/vocab.txt":
			w.Write([]byte("[UNK]\n"))
		case "/repo/config.json":
			w.Write([]byte(`{"id2label":{"0":"yes"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	t.Cleanup(http.DefaultClient.CloseIdleConnections)

	c := config.Default()
	c.ModelDir = filepath.Join(t.TempDir(), "models")
	c.ModelUrl = srv.URL + "/model.onnx"
	c.ModelBaseUrl = srv.URL + "/repo/"

	require.NoError(t, EnsureModelFiles(context.Background(), c))
	mu.Lock()
	assert.ElementsMatch(t, []string{"/model.onnx", "/repo/vocab.txt", "/repo/config.json"}, hits)
	hits = nil
	mu.Unlock()

	data, err := os.ReadFile(filepath.Join(c.ModelDir, c.ModelFileName))
	require.NoError(t, err)
	assert.Equal(t, "onnx", string(data))

	require.NoError(t, EnsureModelFiles(context.Background(), c))
	mu.Lock()
	assert.Empty(t, hits)
	mu.Unlock()
}

func TestEnsureModelFilesErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	t.Cleanup(http.DefaultClient.CloseIdleConnections)

	c := config.Default()
	c.ModelDir = t.TempDir()
	c.ModelUrl = ""
	err := EnsureModelFiles(context.Background(), c)
	assert.ErrorContains(t, err, "no download url configured")

	c.ModelUrl = srv.URL + "/model.onnx"
	err = EnsureModelFiles(context.Background(), c)
	assert.ErrorContains(t, err, "404")
	_, statErr := os.Stat(filepath.Join(c.ModelDir, c.ModelFileName))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}
