package host

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// Transform compiles TypeScript or JSX source to an ES module. The loader
// is chosen from filename's extension.
func Transform(src, filename string) (string, error) {
	loader := esbuild.LoaderJS
	switch filepath.Ext(filename) {
	case ".ts", ".mts":
		loader = esbuild.LoaderTS
	case ".tsx":
		loader = esbuild.LoaderTSX
	case ".jsx":
		loader = esbuild.LoaderJSX
	}
	result := esbuild.Transform(src, esbuild.TransformOptions{
		Loader:     loader,
		Format:     esbuild.FormatESModule,
		Target:     esbuild.ES2022,
		Sourcefile: filename,
	})
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("transforming %s: %s", filename, joinMessages(result.Errors))
	}
	return string(result.Code), nil
}

// TransformLoader passes the sources of another loader through Transform.
// Specifiers without a TypeScript or JSX extension are served unchanged.
type TransformLoader struct {
	Loader Loader
}

func (t TransformLoader) Load(specifier string) (string, error) {
	src, err := t.Loader.Load(specifier)
	if err != nil || !isTypeScript(specifier) {
		return src, err
	}
	return Transform(src, specifier)
}

// Bundle uses esbuild to bundle entry and everything it imports from disk
// into a single ES module, so no imports reach the MODULE channel.
func Bundle(entry string) (string, error) {
	abs, err := filepath.Abs(entry)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", entry, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("bundling %s: %w", entry, err)
	}
	result := esbuild.Build(esbuild.BuildOptions{
		EntryPoints:   []string{abs},
		AbsWorkingDir: filepath.Dir(abs),
		Bundle:        true,
		Format:        esbuild.FormatESModule,
		Write:         false,
		Platform:      esbuild.PlatformNeutral,
		Target:        esbuild.ES2022,
	})
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("bundling %s: %s", entry, joinMessages(result.Errors))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundling produced no output")
	}
	return string(result.OutputFiles[0].Contents), nil
}

func joinMessages(msgs []esbuild.Message) string {
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		texts = append(texts, m.Text)
	}
	return strings.Join(texts, "; ")
}
