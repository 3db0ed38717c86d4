package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk form of a list of known templates
type seedFile struct {
	Templates []string `yaml:"templates"`
}

// expandPaths resolves every pattern to the files it matches. Recursive patterns
// such as logs/**/*.log are supported. The result is sorted and free of duplicates.
func expandPaths(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var paths []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", p, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// loadSeed reads templates from a YAML file holding either a plain list or a
// "templates" key
func loadSeed(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc seedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return doc.Templates, nil
}
