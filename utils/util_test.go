package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetScheme(t *testing.T) {
	assert.Equal(t, "http", GetScheme("http://example.com/a.png"))
	assert.Equal(t, "https", GetScheme("HTTPS://example.com/a.png"))
	assert.Equal(t, "file", GetScheme("file:///tmp/a.png"))
	assert.Equal(t, "res", GetScheme("res://images/a.png"))
	assert.Equal(t, "", GetScheme("/tmp/a.png"))
	assert.Equal(t, "", GetScheme(`C:\images\a.png`))
}

func TestIsWebURI(t *testing.T) {
	assert.True(t, IsWebURI("http://example.com/a.png"))
	assert.True(t, IsWebURI("https://example.com/a.png"))
	assert.False(t, IsWebURI("file:///tmp/a.png"))
	assert.False(t, IsWebURI("res://a.png"))
	assert.False(t, IsWebURI("a.png"))
}

func TestHumanizeBytes(t *testing.T) {
	assert.Equal(t, "512 B", HumanizeBytes(512))
	assert.Equal(t, "1.0 KiB", HumanizeBytes(1024))
	assert.Equal(t, "1.5 MiB", HumanizeBytes(1024*1024*3/2))
}

func TestParseBytes(t *testing.T) {
	size, err := ParseBytes("1000")
	assert.NoError(t, err)
	assert.Equal(t, int64(1000), size)

	size, err = ParseBytes("2 KiB")
	assert.NoError(t, err)
	assert.Equal(t, int64(2048), size)

	size, err = ParseBytes("1GB")
	assert.NoError(t, err)
	assert.Equal(t, int64(1000*1000*1000), size)

	_, err = ParseBytes("lots")
	assert.Error(t, err)
}
