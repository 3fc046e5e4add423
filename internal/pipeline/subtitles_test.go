// SPDX-License-Identifier: MIT

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const srtFixture = `1
00:00:01,000 --> 00:00:03,000
<i>Hello there.</i>

2
00:00:04,000 --> 00:00:06,500
General Kenobi!
`

func TestParseSubtitleText_StripsCueStructure(t *testing.T) {
	text := ParseSubtitleText(srtFixture)
	assert.Equal(t, "Hello there. General Kenobi!", text)
}

func TestParseSubtitleText_WebVTTHeaderDropped(t *testing.T) {
	text := ParseSubtitleText("WEBVTT\n\n00:01.000 --> 00:04.000\nNever drink liquid nitrogen.\n")
	assert.Equal(t, "Never drink liquid nitrogen.", text)
}

func TestSubtitleSane(t *testing.T) {
	assert.True(t, subtitleSane("some words"))
	assert.False(t, subtitleSane(""))
	assert.False(t, subtitleSane("--- ~~~ !!!"))
}
