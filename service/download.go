package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/krau/vqaserve/config"
)

// EnsureModelFiles downloads any model file missing from the model dir.
func EnsureModelFiles(ctx context.Context, c config.Config) error {
	base := strings.TrimSuffix(c.ModelBaseUrl, "/")
	remote := func(name string) string {
		if base == "" {
			return ""
		}
		return base + "/" + name
	}
	files := []struct {
		name string
		url  string
	}{
		{c.ModelFileName, c.ModelUrl},
		{c.VocabFileName, remote("vocab.txt")},
		{c.LabelsFileName, remote("config.json")},
	}

	if err := os.MkdirAll(c.ModelDir, 0755); err != nil {
		return err
	}
	for _, f := range files {
		path := filepath.Join(c.ModelDir, f.name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if f.url == "" {
			return fmt.Errorf("%s not found and no download url configured", path)
		}
		slog.Info("Downloading model file", slog.String("url", f.url), slog.String("path", path))
		if err := download(ctx, f.url, path); err != nil {
			return fmt.Errorf("failed to download %s: %w", f.name, err)
		}
	}
	return nil
}

func download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
