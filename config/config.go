// Package config loads tensorsink settings from yaml files.
package config

import (
	"io"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the content of configuration file.
type File struct {
	Element Element `yaml:"element"`
	Source  Source  `yaml:"source"`
	Metrics Metrics `yaml:"metrics"`
}

// Element configures the sink.
type Element struct {
	Name       string     `yaml:"name"`
	Properties Properties `yaml:"properties"`
}

// Properties are element properties by name. Values are passed to the
// element as they are decoded, so durations can be either strings like
// "15ms" or integer nanoseconds.
type Properties map[string]interface{}

// Source configures the test source.
type Source struct {
	NumBuffers int           `yaml:"num-buffers"`
	Interval   time.Duration `yaml:"interval"`
	Size       int           `yaml:"size"`
	Realtime   bool          `yaml:"realtime"`
}

// Metrics configures the metrics listener.
type Metrics struct {
	Address string `yaml:"address"`
	Feed    string `yaml:"feed"`
}

// Setter sets named property.
type Setter interface {
	Set(name string, value interface{}) error
}

// Default returns configuration used when no file is provided.
func Default() File {
	return File{
		Element: Element{
			Name: "tensor_sink",
		},
		Source: Source{
			NumBuffers: 10,
			Interval:   time.Second / 30,
			Size:       640 * 480 * 3,
		},
		Metrics: Metrics{
			Address: "127.0.0.1:9525",
			Feed:    "/feed",
		},
	}
}

// Load reads configuration file. Values missing in the file keep
// defaults.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config")
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes configuration.
func Parse(r io.Reader) (*File, error) {
	cfg := Default()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	return &cfg, nil
}

// Apply sets all properties in name order. Unknown names are passed to
// the setter as well.
func (p Properties) Apply(s Setter) error {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.Set(name, p[name]); err != nil {
			return errors.Wrapf(err, "failed to apply %s", name)
		}
	}
	return nil
}
