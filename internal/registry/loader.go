// Package registry scans a model repository laid out like a Triton
// repository: one directory per model holding numeric version directories
// and an optional metadata.{yaml,yml,json} describing the signature.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"inferclient/internal/common/fsutil"
	"inferclient/pkg/types"
)

// Entry is one model found in a repository.
type Entry struct {
	Name string
	Path string
	// Versions are the numeric version directories, ascending.
	Versions []string
	// Metadata is nil when the model directory has no metadata file.
	Metadata *types.ModelMetadata
}

// Scanner discovers models under a directory.
type Scanner interface {
	Scan(dir string) ([]Entry, error)
}

type repoScanner struct{}

// NewRepositoryScanner returns the default Scanner.
func NewRepositoryScanner() Scanner { return repoScanner{} }

// LoadDir scans dir with the default scanner.
func LoadDir(dir string) ([]Entry, error) { return NewRepositoryScanner().Scan(dir) }

var metadataFiles = []string{"metadata.yaml", "metadata.yml", "metadata.json"}

// Scan lists model directories. A directory counts as a model when it has
// at least one numeric version directory or a metadata file.
func (repoScanner) Scan(dir string) ([]Entry, error) {
	abs, err := fsutil.AbsDir(dir)
	if err != nil {
		return nil, err
	}
	names, err := fsutil.SubDirs(abs)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, name := range names {
		p := filepath.Join(abs, name)
		versions, err := numericDirs(p)
		if err != nil {
			return nil, err
		}
		md, err := readMetadata(p)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", name, err)
		}
		if len(versions) == 0 && md == nil {
			continue
		}
		if md != nil {
			if md.Name == "" {
				md.Name = name
			}
			if len(md.Versions) == 0 {
				md.Versions = versions
			}
		}
		out = append(out, Entry{Name: name, Path: p, Versions: versions, Metadata: md})
	}
	return out, nil
}

func numericDirs(dir string) ([]string, error) {
	subs, err := fsutil.SubDirs(dir)
	if err != nil {
		return nil, err
	}
	var nums []int
	for _, s := range subs {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	out := make([]string, len(nums))
	for i, n := range nums {
		out[i] = strconv.Itoa(n)
	}
	return out, nil
}

func readMetadata(dir string) (*types.ModelMetadata, error) {
	for _, f := range metadataFiles {
		p := filepath.Join(dir, f)
		if !fsutil.PathExists(p) {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var md types.ModelMetadata
		if filepath.Ext(f) == ".json" {
			err = json.Unmarshal(b, &md)
		} else {
			err = yaml.Unmarshal(b, &md)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		return &md, nil
	}
	return nil, nil
}
