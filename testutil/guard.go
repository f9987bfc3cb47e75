// Package testutil holds helpers that keep package boundaries honest.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoDirectImports scans the non-test .go files in dir and fails if any
// import path satisfies forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfDirectViolations(t, reason, viols)
}

// InternalImportForbidden matches any import path containing /internal/.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// InfraImportForbidden matches the concrete storage and blob adapters.
func InfraImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/infra/")
}

// ModuleImportForbidden returns a predicate matching every package of module
// except the listed allowed ones.
func ModuleImportForbidden(module string, allowed ...string) func(string) bool {
	return func(path string) bool {
		if path != module && !strings.HasPrefix(path, module+"/") {
			return false
		}
		for _, a := range allowed {
			if path == a {
				return false
			}
		}
		return true
	}
}

// AnyOf matches when any predicate matches.
func AnyOf(preds ...func(string) bool) func(string) bool {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		fileAst, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range fileAst.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfDirectViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
