package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestCalcVideoHashStable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "clip.mp4", []byte("fake video content"))

	h1, err := calcVideoHash(path, "alice")
	require.NoError(t, err)
	h2, err := calcVideoHash(path, "alice")
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 8)
}

func TestCalcVideoHashVariesByOwnerAndContent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "clip.mp4", []byte("fake video content"))

	aliceHash, err := calcVideoHash(path, "alice")
	require.NoError(t, err)
	bobHash, err := calcVideoHash(path, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, aliceHash, bobHash)

	other := writeFile(t, dir, "other.mp4", []byte("different content!"))
	otherHash, err := calcVideoHash(other, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, aliceHash, otherHash)
}

func TestCalcVideoHashLargeFileSamplesPrefix(t *testing.T) {
	dir := t.TempDir()

	// Two files identical in the sampled prefix but different beyond it
	// still hash differently through the size component.
	prefix := make([]byte, hashSampleBytes)
	a := writeFile(t, dir, "a.mp4", append(append([]byte{}, prefix...), []byte("tail-a")...))
	b := writeFile(t, dir, "b.mp4", append(append([]byte{}, prefix...), []byte("tail-b-longer")...))

	ha, err := calcVideoHash(a, "alice")
	require.NoError(t, err)
	hb, err := calcVideoHash(b, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestCalcVideoHashEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.mp4", nil)

	_, err := calcVideoHash(path, "alice")
	assert.Error(t, err)
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.bin", []byte("payload"))
	dst := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(dst, 0o755))
	dstFile := filepath.Join(dst, "dst.bin")

	require.NoError(t, moveFile(src, dstFile))

	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	content, err := os.ReadFile(dstFile)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}
