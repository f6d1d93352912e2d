package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GoldenStatus is the outcome of comparing a trace against its golden file.
type GoldenStatus string

const (
	GoldenNone     GoldenStatus = "none"     // no golden file; assertions decide
	GoldenMatched  GoldenStatus = "matched"  // trace equals the golden file
	GoldenUpdated  GoldenStatus = "updated"  // golden file rewritten from the trace
	GoldenMismatch GoldenStatus = "mismatch" // trace differs from the golden file
)

// Discover returns the scenario files under dir in walk order. A non-empty
// filter is a glob matched against the file name without its extension.
func Discover(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", filter, err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(d.Name(), ext)
			if ok, _ := filepath.Match(filter, name); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// GoldenPath returns the golden file of a scenario file: the same name with
// a .golden extension, in a golden directory beside it.
func GoldenPath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// CheckGolden compares a scenario's trace with its golden file, or rewrites
// the file when update is set. A scenario with no golden file is left to its
// assertions.
func CheckGolden(scenarioFile string, scenario *Scenario, result *Result, update bool) (GoldenStatus, error) {
	snapshot := NewSnapshot(scenario, result)
	current, err := snapshot.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal trace: %w", err)
	}

	path := GoldenPath(scenarioFile)
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", fmt.Errorf("create golden directory: %w", err)
		}
		if err := os.WriteFile(path, current, 0644); err != nil {
			return "", fmt.Errorf("write golden file: %w", err)
		}
		return GoldenUpdated, nil
	}

	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return GoldenNone, nil
	}
	if err != nil {
		return "", fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(want, current) {
		return GoldenMismatch, nil
	}
	return GoldenMatched, nil
}
