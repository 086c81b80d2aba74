package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/tensorsink"
	"github.com/dudk/tensorsink/config"
)

const testConfig = `
element:
  name: test_sink
  properties:
    render-rate: 15ms
    emit-signal: true
    silent: false
    max-lateness: -1
    qos: false
    unknown-prop: 1
source:
  num-buffers: 20
  interval: 10ms
`

func TestParse(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(testConfig))
	require.NoError(t, err)
	assert.Equal(t, "test_sink", cfg.Element.Name)
	assert.Equal(t, 20, cfg.Source.NumBuffers)
	assert.Equal(t, 10*time.Millisecond, cfg.Source.Interval)
	// defaults are kept
	assert.Equal(t, config.Default().Source.Size, cfg.Source.Size)
	assert.Equal(t, config.Default().Metrics, cfg.Metrics)

	s := tensorsink.New()
	require.NoError(t, cfg.Element.Properties.Apply(s))
	assert.Equal(t, tensorsink.Config{
		RenderRate:  15 * time.Millisecond,
		EmitSignal:  true,
		Silent:      false,
		Sync:        true,
		MaxLateness: tensorsink.LatenessUnlimited,
		QoS:         false,
	}, s.Config())
	_, ok := s.Get("unknown-prop")
	assert.False(t, ok)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), *cfg)
}

func TestParseInvalid(t *testing.T) {
	_, err := config.Parse(strings.NewReader("source: [1, 2"))
	assert.Error(t, err)
}

func TestApplyInvalidValue(t *testing.T) {
	props := config.Properties{
		tensorsink.PropSync: "sometimes",
	}
	err := props.Apply(tensorsink.New())
	assert.True(t, errors.Is(err, tensorsink.ErrInvalidValue))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tensorsink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test_sink", cfg.Element.Name)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
