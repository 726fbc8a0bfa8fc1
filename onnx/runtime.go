package onnx

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/krau/vqaserve/config"
)

var pathOnce sync.Once
var libPath string

func LibPath() string {
	pathOnce.Do(func() {
		libPath = lookupLibPath(config.C().Libonnx, runtime.GOOS)
		if libPath == "" {
			slog.Error("ONNX Runtime library path could not be determined for this OS")
		} else {
			slog.Info("Using ONNX Runtime library", slog.String("path", libPath))
		}
	})
	return libPath
}

var candidates = map[string][]string{
	"linux": {
		filepath.Join("onnxlibs", "libonnxruntime.so"),
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
	},
	"darwin": {
		filepath.Join("onnxlibs", "libonnxruntime.dylib"),
		"/usr/local/lib/libonnxruntime.dylib",
		"/opt/homebrew/lib/libonnxruntime.dylib",
	},
	"windows": {
		filepath.Join("onnxlibs", "onnxruntime.dll"),
		"onnxruntime.dll",
	},
}

// lookupLibPath prefers the configured path, then the first existing
// candidate for goos. If none exists the last candidate is returned so the
// loader can still search the system paths.
func lookupLibPath(configured, goos string) string {
	if configured != "" {
		return configured
	}
	paths := candidates[goos]
	if len(paths) == 0 {
		return ""
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return paths[len(paths)-1]
}
