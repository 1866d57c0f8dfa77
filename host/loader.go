package host

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
)

// ErrModuleNotFound is returned by a Loader that does not know a specifier.
var ErrModuleNotFound = errors.New("module not found")

// Loader returns the source text of a normalised module specifier.
type Loader interface {
	Load(specifier string) (string, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(specifier string) (string, error)

func (f LoaderFunc) Load(specifier string) (string, error) { return f(specifier) }

func isNotFound(err error) bool {
	return errors.Is(err, ErrModuleNotFound)
}

func notFound(specifier string) error {
	return fmt.Errorf("%w: %s", ErrModuleNotFound, specifier)
}

// MapLoader serves modules from memory.
type MapLoader map[string]string

func (m MapLoader) Load(specifier string) (string, error) {
	src, ok := m[specifier]
	if !ok {
		return "", notFound(specifier)
	}
	return src, nil
}

// DirLoader serves modules from files under Root. A specifier may omit the
// .js or .mjs extension, and a file may be stored brotli-compressed with an
// additional .br suffix.
type DirLoader struct {
	Root string
}

func (d DirLoader) Load(specifier string) (string, error) {
	rel, ok := cleanSpecifier(specifier)
	if !ok {
		return "", notFound(specifier)
	}
	base := filepath.Join(d.Root, filepath.FromSlash(rel))
	for _, name := range []string{base, base + ".js", base + ".mjs"} {
		if data, err := os.ReadFile(name); err == nil {
			return string(data), nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("reading module %s: %w", specifier, err)
		}
		data, err := os.ReadFile(name + ".br")
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("reading module %s: %w", specifier, err)
		}
		src, err := decompressBrotli(data)
		if err != nil {
			return "", fmt.Errorf("decompressing module %s: %w", specifier, err)
		}
		return src, nil
	}
	return "", notFound(specifier)
}

// cleanSpecifier turns a specifier into a root-relative slash path. Paths
// escaping the root are rejected.
func cleanSpecifier(specifier string) (string, bool) {
	if specifier == "" || strings.ContainsRune(specifier, 0) {
		return "", false
	}
	p := path.Clean("/" + strings.TrimPrefix(specifier, "./"))
	if p == "/" || strings.Contains(specifier, "..") {
		return "", false
	}
	return strings.TrimPrefix(p, "/"), true
}

// maxModuleSize caps the decompressed size of a brotli module source.
const maxModuleSize = 64 << 20

func decompressBrotli(data []byte) (string, error) {
	return decompressBrotliLimit(data, maxModuleSize)
}

func decompressBrotliLimit(data []byte, limit int64) (string, error) {
	out, err := io.ReadAll(io.LimitReader(brotli.NewReader(bytes.NewReader(data)), limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(out)) > limit {
		return "", fmt.Errorf("decompressed module exceeds %d bytes", limit)
	}
	return string(out), nil
}

func compressBrotli(src string) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := io.WriteString(w, src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ChainLoader tries each loader in order until one knows the specifier.
type ChainLoader []Loader

func (c ChainLoader) Load(specifier string) (string, error) {
	for _, l := range c {
		src, err := l.Load(specifier)
		if err == nil {
			return src, nil
		}
		if !isNotFound(err) {
			return "", err
		}
	}
	return "", notFound(specifier)
}
