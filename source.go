package goasn1

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions are the file extensions recognized as ASN.1 files.
var DefaultExtensions = []string{".asn", ".asn1"}

// Source is one labeled blob of ASN.1 text. The label appears in syntax
// errors.
type Source struct {
	Label string
	Text  []byte
}

// StringSource labels an in-memory definition.
func StringSource(label, text string) Source {
	return Source{Label: label, Text: []byte(text)}
}

// FileSource reads one .asn/.asn1 file.
func FileSource(path string) (Source, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Source{}, err
	}
	return Source{Label: path, Text: content}, nil
}

// DirSource reads every ASN.1 file under a directory tree, in sorted
// order for deterministic compilations.
func DirSource(root string) ([]Source, error) {
	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, want := range DefaultExtensions {
			if ext == want {
				paths = append(paths, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	sources := make([]Source, 0, len(paths))
	for _, path := range paths {
		src, err := FileSource(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}
