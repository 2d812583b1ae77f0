package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestNewDefaultsEncodingAndLevel(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(0)) // info
	assert.False(t, l.Core().Enabled(-1))
}

func TestInitReplacesGlobal(t *testing.T) {
	require.NoError(t, Init(Config{Level: "error", Encoding: "console"}))
	assert.False(t, Get().Core().Enabled(0))

	require.NoError(t, Init(Config{Level: "debug", Encoding: "json"}))
	assert.True(t, Get().Core().Enabled(-1))
}

func TestWithContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), TopicKey, "arrowbus-test")
	ctx = context.WithValue(ctx, CodecKey, "ipc")

	assert.NotNil(t, WithContext(ctx))
	assert.NotNil(t, WithContext(context.Background()))
}
