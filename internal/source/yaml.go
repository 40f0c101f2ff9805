package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/propane/internal/manifest"
)

// parseYAML decodes every document in a YAML manifest file. Unknown fields
// are rejected so that typos surface as read errors instead of silently
// dropped configuration.
func parseYAML(path string, data []byte) ([]manifest.Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var out []manifest.Manifest
	for i := 0; ; i++ {
		var m manifest.Manifest
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s (document %d): %w", path, i, err)
		}
		out = append(out, m)
	}
	return out, nil
}
