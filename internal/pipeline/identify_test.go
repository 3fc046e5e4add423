// SPDX-License-Identifier: MIT

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const identifyFixture = `Image: /in/pic.png
  Format: PNG (Portable Network Graphics)
  Geometry: 1920x1080+0+0
  Depth: 8
  Alpha: True
  Interlace: Undefined
  Channel statistics:
    Red:
      mean: 127.5
    Green:
      mean: 64
  Compression: Zip
`

func TestParseIdentify_GeometryExpandsDimensions(t *testing.T) {
	tree := ParseIdentify(identifyFixture)

	assert.Equal(t, float64(1920), tree["width"])
	assert.Equal(t, float64(1080), tree["height"])
	assert.InDelta(t, 1920.0/1080.0, tree["aspect"].(float64), 1e-9)
	assert.Equal(t, "1920x1080+0+0", tree["geometry"])
}

func TestParseIdentify_NormalizesValues(t *testing.T) {
	tree := ParseIdentify(identifyFixture)

	assert.Equal(t, true, tree["alpha"])
	assert.Equal(t, float64(8), tree["depth"])
	assert.Equal(t, "Zip", tree["compression"])

	val, present := tree["interlace"]
	assert.True(t, present)
	assert.Nil(t, val)
}

func TestParseIdentify_BuildsNestedSubtrees(t *testing.T) {
	tree := ParseIdentify(identifyFixture)

	stats, ok := tree["channel statistics"].(map[string]any)
	require.True(t, ok)
	red, ok := stats["red"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 127.5, red["mean"])
}

func TestParseIdentify_FirstLineIsIgnored(t *testing.T) {
	tree := ParseIdentify("Geometry: 64x64+0+0\n  Depth: 8\n")
	_, hasGeometry := tree["geometry"]
	assert.False(t, hasGeometry)
	assert.Equal(t, float64(8), tree["depth"])
}

func TestFindDimensions_DescendsIntoSubtrees(t *testing.T) {
	tree := ParseIdentify("header\n  Image:\n    Geometry: 640x480+0+0\n")
	w, h, aspect, ok := findDimensions(tree)
	require.True(t, ok)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
	assert.InDelta(t, 640.0/480.0, aspect, 1e-9)
}
