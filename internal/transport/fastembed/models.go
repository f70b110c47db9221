// Package fastembed embeds text locally with ONNX models through fastembed-go.
// The real implementation needs cgo; pure-Go builds get a stub that reports
// ErrUnavailable so the server can still start on remote providers.
package fastembed

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrUnavailable is returned by the stub built without cgo.
var ErrUnavailable = errors.New("fastembed: not available (binary built without cgo)")

// Config selects the local model.
type Config struct {
	Model     string
	CacheDir  string
	MaxLength int
	BatchSize int
}

var aliases = map[string]string{
	"BAAI/bge-small-en-v1.5":                 "fast-bge-small-en-v1.5",
	"BAAI/bge-small-en":                      "fast-bge-small-en",
	"BAAI/bge-base-en-v1.5":                  "fast-bge-base-en-v1.5",
	"BAAI/bge-base-en":                       "fast-bge-base-en",
	"BAAI/bge-small-zh-v1.5":                 "fast-bge-small-zh-v1.5",
	"sentence-transformers/all-MiniLM-L6-v2": "fast-all-MiniLM-L6-v2",
}

var dimensions = map[string]int{
	"fast-bge-small-en-v1.5": 384,
	"fast-bge-small-en":      384,
	"fast-bge-base-en-v1.5":  768,
	"fast-bge-base-en":       768,
	"fast-bge-small-zh-v1.5": 512,
	"fast-all-MiniLM-L6-v2":  384,
}

// Resolve maps a friendly or fastembed model name to the fastembed name and its
// output dimension.
func Resolve(model string) (string, int, error) {
	name := model
	if alias, ok := aliases[model]; ok {
		name = alias
	}
	dims, ok := dimensions[name]
	if !ok {
		return "", 0, fmt.Errorf("fastembed: unsupported model %q", model)
	}
	return name, dims, nil
}

func (c Config) withDefaults() Config {
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(".", "local_cache")
	}
	if c.MaxLength <= 0 {
		c.MaxLength = 512
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	return c
}
