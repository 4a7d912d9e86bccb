package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gopkg.in/yaml.v3"

	"github.com/schizzz8/lucrezio-semantic-perception/rimage/transform"
	"github.com/schizzz8/lucrezio-semantic-perception/ros"
)

// Read reads a config from the given file. The format is chosen by extension: ".yaml" and
// ".yml" are YAML, anything else is JSON.
func Read(filePath string) (*Config, error) {
	//nolint:gosec
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open config %q", filePath)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	cfg, err := FromReader(filePath, f)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFilePath = filePath
	return cfg, nil
}

// FromReader reads a config from r, picking the format from originalPath's extension. Defaults
// are applied before validation.
func FromReader(originalPath string, r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read config")
	}
	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(originalPath)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrapf(err, "cannot parse YAML config %q", originalPath)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.Wrapf(err, "cannot parse JSON config %q", originalPath)
		}
	}
	if err := cfg.Complete(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the camera matrix from the configured JSON file or rosbag.
func (ic *IntrinsicsConfig) Load() (*transform.PinholeCameraIntrinsics, error) {
	if ic.File != "" {
		return transform.NewPinholeCameraIntrinsicsFromJSONFile(ic.File)
	}
	rb, err := ros.ReadBag(ic.Bag)
	if err != nil {
		return nil, err
	}
	return ros.CameraInfoFromBag(rb, ic.Topic)
}
