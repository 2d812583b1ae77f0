package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowbus/pkg/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "arrowbus v"+version)
}

func TestConfigPrintAppliesFlags(t *testing.T) {
	out, err := execute(t, "config", "print", "--codec", "raw", "--rows", "50", "--topic", "metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "kind: raw")
	assert.Contains(t, out, "row_count: 50")
	assert.Contains(t, out, "name: metrics")
}

func TestConfigSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arrowbus.yaml")
	_, err := execute(t, "config", "save", path, "--brokers", "kafka-1:9092,kafka-2:9092", "--codec", "raw")
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Brokers)
	assert.Equal(t, "raw", cfg.Codec.Kind)
}

func TestConfigSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arrowbus.yaml")
	_, err := execute(t, "config", "save", path, "--codec", "protobuf")
	assert.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestProduceValidatesBeforeDialing(t *testing.T) {
	_, err := execute(t, "produce", "--brokers", "no-port")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host:port")
}

func TestBench(t *testing.T) {
	if testing.Short() {
		t.Skip("runs testing.Benchmark")
	}

	path := filepath.Join(t.TempDir(), "bench.json")
	out, err := execute(t, "bench", "--codec", "raw", "--sizes", "100", "--json", path, "-q")
	require.NoError(t, err)
	assert.Contains(t, out, "ns/op")
	assert.Contains(t, out, "report saved to")
	assert.FileExists(t, path)
}

func TestBenchRejectsBadSizes(t *testing.T) {
	_, err := execute(t, "bench", "--sizes", "ten")
	assert.Error(t, err)
}
