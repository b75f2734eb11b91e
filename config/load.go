package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNotFound is returned by Discover when no config file exists.
var ErrNotFound = errors.New("no config file found")

// discoverPatterns match config files in a directory and in its .execview
// subdirectory.
var discoverPatterns = []string{
	"execview.{yaml,yml,json}",
	".execview/execview.{yaml,yml,json}",
}

// Discover looks for a config file in dir. Files directly in dir win over
// files in dir/.execview; within a directory YAML wins over JSON.
func Discover(dir string) (string, error) {
	fsys := os.DirFS(dir)
	var matches []string
	for _, pattern := range discoverPatterns {
		found, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return "", fmt.Errorf("searching %s: %w", dir, err)
		}
		matches = append(matches, found...)
	}
	if len(matches) == 0 {
		return "", ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		return discoverRank(matches[i]) < discoverRank(matches[j])
	})
	return filepath.Join(dir, filepath.FromSlash(matches[0])), nil
}

func discoverRank(match string) int {
	rank := 0
	if filepath.Dir(filepath.FromSlash(match)) != "." {
		rank += 10
	}
	switch filepath.Ext(match) {
	case ".yaml":
	case ".yml":
		rank++
	default:
		rank += 2
	}
	return rank
}

// Load reads the config file at path, or discovers one in the working
// directory when path is empty. With no file at all the defaults are used.
// The result has defaults applied and is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := Discover(".")
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		path = found
	}
	config := &Config{}
	if path != "" {
		parsed, err := ParseFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s does not exist", path)
			}
			return nil, fmt.Errorf("failed to parse file %s: %w", path, err)
		}
		config = parsed
	}
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
