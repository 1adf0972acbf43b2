package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/kmeans"
	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/pca"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/features"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/selection"
)

// bundleVersion is bumped whenever the persisted layout changes
const bundleVersion = 1

// ModelBundle is everything predict needs to reproduce the training
// transform: extraction and selection settings, the column normalization and
// both fitted models
type ModelBundle struct {
	Version       int                     `json:"version" yaml:"version" msgpack:"version"`
	RunID         string                  `json:"run_id" yaml:"run_id" msgpack:"run_id"`
	CreatedAt     time.Time               `json:"created_at" yaml:"created_at" msgpack:"created_at"`
	Features      features.Config         `json:"features" yaml:"features" msgpack:"features"`
	Selection     selection.Config        `json:"selection" yaml:"selection" msgpack:"selection"`
	Segmenter     string                  `json:"segmenter" yaml:"segmenter" msgpack:"segmenter"`
	Normalization selection.Normalization `json:"normalization" yaml:"normalization" msgpack:"normalization"`
	PCA           pca.Snapshot            `json:"pca" yaml:"pca" msgpack:"pca"`
	KMeans        kmeans.Snapshot         `json:"kmeans" yaml:"kmeans" msgpack:"kmeans"`
}

// Models rebuilds the fitted models and checks they chain together
func (b *ModelBundle) Models() (*pca.Model, *kmeans.Model, error) {
	p, err := pca.FromSnapshot(b.PCA)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid pca model: %w", err)
	}
	k, err := kmeans.FromSnapshot(b.KMeans)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid kmeans model: %w", err)
	}
	if k.Dim != p.K {
		return nil, nil, fmt.Errorf("kmeans dimension %d does not match %d pca components", k.Dim, p.K)
	}
	return p, k, nil
}

// bundleFormat picks the encoding from the file extension, falling back to
// the configured default
func bundleFormat(path, fallback string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".msgpack", ".mpk":
		return "msgpack"
	}
	return fallback
}

// bundleExtension is the file extension written for format
func bundleExtension(format string) string {
	switch format {
	case "json":
		return ".json"
	case "yaml":
		return ".yaml"
	}
	return ".msgpack"
}

// encodeBundle serializes b. msgpack reads the json tags of nested config
// structs so every encoding shares one set of field names.
func encodeBundle(b *ModelBundle, format string) ([]byte, error) {
	switch format {
	case "json":
		return json.MarshalIndent(b, "", "  ")
	case "yaml":
		return yaml.Marshal(b)
	case "msgpack":
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(b); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown model format %q", format)
}

func decodeBundle(data []byte, format string) (*ModelBundle, error) {
	b := &ModelBundle{}
	var err error
	switch format {
	case "json":
		err = json.Unmarshal(data, b)
	case "yaml":
		err = yaml.Unmarshal(data, b)
	case "msgpack":
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		err = dec.Decode(b)
	default:
		err = fmt.Errorf("unknown model format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if b.Version != bundleVersion {
		return nil, fmt.Errorf("unsupported model bundle version %d", b.Version)
	}
	return b, nil
}

// SaveBundle writes b to path, creating parent directories
func SaveBundle(path, defaultFormat string, b *ModelBundle) error {
	data, err := encodeBundle(b, bundleFormat(path, defaultFormat))
	if err != nil {
		return fmt.Errorf("failed to encode model bundle: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model bundle: %w", err)
	}
	return nil
}

// LoadBundle reads a bundle written by SaveBundle. Files without a known
// extension are read as msgpack.
func LoadBundle(path string) (*ModelBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model bundle: %w", err)
	}
	b, err := decodeBundle(data, bundleFormat(path, "msgpack"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode model bundle %s: %w", path, err)
	}
	return b, nil
}
