package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Token       string `toml:"token" mapstructure:"token"`
	Host        string `toml:"host" mapstructure:"host" validate:"required"`
	Port        string `toml:"port" mapstructure:"port" validate:"required,numeric"`
	Libonnx     string `toml:"libonnx" mapstructure:"libonnx"`
	Workers     int    `toml:"workers" mapstructure:"workers" validate:"min=1"`
	Threads     int    `toml:"threads" mapstructure:"threads" validate:"min=0"`
	MaxUploadMB int64  `toml:"max_upload_mb" mapstructure:"max_upload_mb" validate:"min=1"`
	MaxPixels   int64  `toml:"max_pixels" mapstructure:"max_pixels" validate:"min=1"`
	// seconds a request may wait for a free model session
	TimeoutSeconds int `toml:"timeout_seconds" mapstructure:"timeout_seconds" validate:"min=0"`

	ModelID        string `toml:"model_id" mapstructure:"model_id" validate:"required"`
	ModelUrl       string `toml:"model_url" mapstructure:"model_url" validate:"omitempty,url"`
	ModelBaseUrl   string `toml:"model_base_url" mapstructure:"model_base_url" validate:"omitempty,url"`
	ModelDir       string `toml:"model_dir" mapstructure:"model_dir" validate:"required"`
	ModelFileName  string `toml:"model_file_name" mapstructure:"model_file_name" validate:"required"`
	VocabFileName  string `toml:"vocab_file_name" mapstructure:"vocab_file_name" validate:"required"`
	LabelsFileName string `toml:"labels_file_name" mapstructure:"labels_file_name" validate:"required"`
	MaxTextLen     int    `toml:"max_text_len" mapstructure:"max_text_len" validate:"min=3"`
}

const DefaultPath = "config.toml"

func Default() Config {
	return Config{
		Token:          "",
		Host:           "0.0.0.0",
		Port:           "8000",
		Workers:        1,
		Threads:        0,
		MaxUploadMB:    10,
		MaxPixels:      178956970,
		TimeoutSeconds: 60,
		ModelID:        "dandelin/vilt-b32-finetuned-vqa",
		ModelUrl:       "",
		ModelBaseUrl:   "https://huggingface.co/dandelin/vilt-b32-finetuned-vqa/resolve/main",
		ModelDir:       "models",
		ModelFileName:  "model.onnx",
		VocabFileName:  "vocab.txt",
		LabelsFileName: "config.json",
		MaxTextLen:     40,
	}
}

var (
	cfg      Config
	loadOnce sync.Once
)

// C returns the process configuration, loading it on first use.
func C() Config {
	loadOnce.Do(func() {
		path := os.Getenv("VQA_CONFIG")
		if path == "" {
			path = DefaultPath
		}
		c, err := Load(path)
		if err != nil {
			panic(err)
		}
		cfg = c
	})
	return cfg
}

// Load reads path on top of the defaults, then applies .env and environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return c, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return c, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := applyEnv(&c); err != nil {
		return c, err
	}

	if err := validator.New().Struct(c); err != nil {
		return c, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func applyEnv(c *Config) error {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set("VQA_HOST", &c.Host)
	set("PORT", &c.Port)
	set("VQA_PORT", &c.Port)
	set("VQA_TOKEN", &c.Token)
	set("VQA_LIBONNX", &c.Libonnx)
	set("VQA_MODEL_DIR", &c.ModelDir)

	if v := os.Getenv("VQA_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid VQA_WORKERS %q: %w", v, err)
		}
		c.Workers = n
	}
	return nil
}
