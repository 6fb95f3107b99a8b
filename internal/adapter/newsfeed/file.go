package newsfeed

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
)

// File reads reference items from a YAML document:
//
//	items:
//	  - id: quake-1
//	    text: Major earthquake hits downtown area
//	    location: {lat: 37.77, lon: -122.42}
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

// Fetch re-reads the file, so edits are picked up on the next refresh.
func (f *File) Fetch(_ context.Context) ([]domain.ReferenceNewsItem, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read corpus file: %w", err)
	}
	return parseCorpusYAML(data)
}

func parseCorpusYAML(data []byte) ([]domain.ReferenceNewsItem, error) {
	var doc feedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse corpus file: %w", err)
	}
	return doc.Items, nil
}
