package policy

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
)

// ReadBundle collects every .rego module under dir, including nested
// directories, keyed by slash-separated path relative to dir. Test files
// (*_test.rego) are skipped.
func ReadBundle(dir string) (map[string]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("policy bundle: %w", err)
	}
	return readModules(os.DirFS(dir))
}

func readModules(fsys fs.FS) (map[string]string, error) {
	modules := make(map[string]string)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".rego" || strings.HasSuffix(p, "_test.rego") {
			return nil
		}
		src, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		modules[p] = string(src)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return modules, nil
}
