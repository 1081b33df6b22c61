package envelope

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// The signing core stays free of I/O: it never reaches the wire, the config
// layer or the composition root.
func TestArchitecture_CorePackagesDisallowTransportAndCompositionImports(t *testing.T) {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to resolve current test file path")
	}
	internalDir := filepath.Dir(filepath.Dir(currentFile))
	corePackages := []string{"codec", "identity", "envelope", "keydir", "matching"}
	forbiddenPrefixes := []string{
		"lovefi/agent-client/internal/transport",
		"lovefi/agent-client/internal/composition",
		"lovefi/agent-client/internal/config",
		"lovefi/agent-client/internal/platform",
		"net/http",
		"net",
	}

	fset := token.NewFileSet()
	var violations []string
	for _, pkg := range corePackages {
		pkgDir := filepath.Join(internalDir, pkg)
		walkErr := filepath.WalkDir(pkgDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			parsed, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if err != nil {
				return fmt.Errorf("parse file %s: %w", path, err)
			}
			for _, imp := range parsed.Imports {
				importPath := strings.Trim(imp.Path.Value, `"`)
				for _, prefix := range forbiddenPrefixes {
					if !hasPrefixImport(importPath, prefix) {
						continue
					}
					pos := fset.Position(imp.Path.Pos())
					relPath, relErr := filepath.Rel(internalDir, path)
					if relErr != nil {
						relPath = path
					}
					violations = append(violations, fmt.Sprintf("%s:%d imports %q", relPath, pos.Line, importPath))
					break
				}
			}
			return nil
		})
		if walkErr != nil {
			t.Fatalf("walk %s: %v", pkg, walkErr)
		}
	}
	if len(violations) > 0 {
		t.Fatalf("core boundary violations detected:\n- %s", strings.Join(violations, "\n- "))
	}
}

func hasPrefixImport(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
