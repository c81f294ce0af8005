package core

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestPublicPackagesStayFreeOfInternals ensures the exported surface under
// pkg/ never reaches into internal packages. Hosts embed pkg/domain and
// pkg/document directly; those must stay dependency-inverted.
func TestPublicPackagesStayFreeOfInternals(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "linkcore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		if !strings.HasPrefix(pkg.PkgPath, "linkcore/pkg/") {
			continue
		}
		for importPath := range pkg.Imports {
			if strings.HasPrefix(importPath, "linkcore/internal/") {
				violations = append(violations, pkg.PkgPath+": "+importPath)
			}
		}
	}
	sort.Strings(violations)
	for _, v := range violations {
		t.Errorf("forbidden internal import from public package: %s", v)
	}
}

// TestOnlyArchiveLayerImportsBlobBackends ensures artifact storage backends
// stay behind the blobcore.Store interface. Everything outside the archive
// wiring must depend on the interface, not a concrete backend.
func TestOnlyArchiveLayerImportsBlobBackends(t *testing.T) {
	infraPrefix := "linkcore/internal/infra/blob"
	allowed := []string{
		"linkcore/internal/archive",
		"linkcore/internal/core", // backend selection and its tests
		infraPrefix,
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "linkcore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	isAllowed := func(path string) bool {
		for _, prefix := range allowed {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
		}
		return false
	}

	var violations []string
	for _, pkg := range pkgs {
		if isAllowed(pkg.PkgPath) {
			continue
		}
		for importPath := range pkg.Imports {
			if importPath == infraPrefix || strings.HasPrefix(importPath, infraPrefix+"/") {
				violations = append(violations, pkg.PkgPath+": "+importPath)
			}
		}
	}
	sort.Strings(violations)
	for _, v := range violations {
		t.Errorf("forbidden import of blob backend: %s", v)
	}
}
