// SPDX-License-Identifier: MIT

// Package config holds the resolved indexer configuration. Options cascade
// from the global block into each media-type block when absent there, so the
// pipelines only ever see an effective per-type config.
package config

import (
	"fmt"
	"io/fs"
	"strconv"
)

// Common is the set of options every type block may override.
type Common struct {
	CanSkip  *bool  `yaml:"canSkip,omitempty"`
	Delete   *bool  `yaml:"delete,omitempty"`
	DropTags *bool  `yaml:"dropTags,omitempty"`
	Mode     string `yaml:"mode,omitempty"` // octal file mode, e.g. "0644"
	Save     string `yaml:"save,omitempty"`
	Shasum   string `yaml:"shasum,omitempty"`
}

// Effective is the fully resolved form of Common handed to a pipeline.
type Effective struct {
	CanSkip  bool
	Delete   bool
	DropTags bool
	Mode     fs.FileMode
	Save     string
	Shasum   string
}

// Dimensions bounds an image axis pair.
type Dimensions struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// TypeMatch selects files for one pipeline.
type TypeMatch struct {
	Enabled bool   `yaml:"enabled"`
	Pattern string `yaml:"pattern"`
	Exclude string `yaml:"exclude,omitempty"`
}

// ImageConfig drives the image pipeline.
type ImageConfig struct {
	Common    `yaml:",inline"`
	TypeMatch `yaml:",inline"`
	Minimum   Dimensions `yaml:"minimum"`
	Maximum   Dimensions `yaml:"maximum"`
	Identify  string     `yaml:"identify"` // command template, $input
	Thumbnail struct {
		Format   string `yaml:"format"`
		Template string `yaml:"template"` // $input, $output, $geometry
		Geometry string `yaml:"geometry"`
	} `yaml:"thumbnail"`
	Preview struct {
		Template string `yaml:"template"` // animated gif preview
	} `yaml:"preview"`
}

// TextConfig drives the text pipeline.
type TextConfig struct {
	Common          `yaml:",inline"`
	TypeMatch       `yaml:",inline"`
	Minimum         int64  `yaml:"minimum"`
	Maximum         int64  `yaml:"maximum"`     // 0 = unbounded
	Compression     string `yaml:"compression"` // none | brotli | gzip
	Summarize       int    `yaml:"summarize"`   // summary length; 0 disables the summarizer
	SummaryFallback int    `yaml:"summaryFallback"`
}

// VideoConfig drives the video pipeline.
type VideoConfig struct {
	Common    `yaml:",inline"`
	TypeMatch `yaml:",inline"`
	Format    string `yaml:"format"`  // canonical container, e.g. "mp4"
	Probe     string `yaml:"probe"`   // $input
	Convert   string `yaml:"convert"` // $input, $output, $format
	Thumbnail struct {
		Format   string  `yaml:"format"`
		Time     float64 `yaml:"time"`
		Template string  `yaml:"template"` // $input, $output, $time
	} `yaml:"thumbnail"`
	Preview struct {
		Duration int    `yaml:"duration"`
		Template string `yaml:"template"` // $input, $output, $interval
	} `yaml:"preview"`
	Sound struct {
		Check     bool    `yaml:"check"`
		Threshold float64 `yaml:"threshold"` // dB; mean at or below is silent
		Template  string  `yaml:"template"`  // $input
	} `yaml:"sound"`
	Subtitles struct {
		Format        string `yaml:"format"`   // e.g. "srt"
		Language      string `yaml:"language"` // e.g. "eng"
		Template      string `yaml:"template"` // $input, $output, $language
		Fallback      string `yaml:"fallback"` // $input, $output
		ToDescription bool   `yaml:"toDescription"`
		Index         string `yaml:"index"` // dedicated search index name
	} `yaml:"subtitles"`
}

// ScannerConfig mirrors the traversal options.
type ScannerConfig struct {
	Exclude        []string `yaml:"exclude,omitempty"`
	Persistent     bool     `yaml:"persistent"`
	Rescan         int      `yaml:"rescan"` // milliseconds, 0 = off
	Sort           bool     `yaml:"sort"`
	Concurrency    int      `yaml:"concurrency"`
	Recursive      bool     `yaml:"recursive"`
	Dotfiles       bool     `yaml:"dotfiles"`
	MaxDepth       int      `yaml:"maxDepth"`
	FollowSymlinks bool     `yaml:"followSymlinks"`
}

// Services configures the external stores.
type Services struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Search struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"search"`
	Redis struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
		Key     string `yaml:"key"`
	} `yaml:"redis"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	Concurrency int      `yaml:"concurrency"`
	Cache       string   `yaml:"cache"` // indexed-path cache file; "" disables
	Scan        []string `yaml:"scan"`
	LogLevel    string   `yaml:"logLevel"`

	Common  `yaml:",inline"`
	Scanner ScannerConfig `yaml:"scanner"`

	Services Services `yaml:"services"`

	Types struct {
		Image ImageConfig `yaml:"image"`
		Text  TextConfig  `yaml:"text"`
		Video VideoConfig `yaml:"video"`
	} `yaml:"types"`
}

// resolveCommon fills the per-type block from the global block and parses
// the octal mode.
func resolveCommon(global Common, override Common) (Effective, error) {
	pick := func(o, g *bool, def bool) bool {
		if o != nil {
			return *o
		}
		if g != nil {
			return *g
		}
		return def
	}
	eff := Effective{
		CanSkip:  pick(override.CanSkip, global.CanSkip, true),
		Delete:   pick(override.Delete, global.Delete, false),
		DropTags: pick(override.DropTags, global.DropTags, false),
	}

	mode := override.Mode
	if mode == "" {
		mode = global.Mode
	}
	if mode == "" {
		mode = "0644"
	}
	parsed, err := strconv.ParseUint(mode, 8, 32)
	if err != nil {
		return eff, fmt.Errorf("invalid mode %q: %w", mode, err)
	}
	eff.Mode = fs.FileMode(parsed)

	eff.Save = override.Save
	if eff.Save == "" {
		eff.Save = global.Save
	}
	eff.Shasum = override.Shasum
	if eff.Shasum == "" {
		eff.Shasum = global.Shasum
	}
	return eff, nil
}

// EffectiveFor resolves the cascading options for the named type.
func (c *AppConfig) EffectiveFor(kind string) (Effective, error) {
	global := c.Common
	global.Save = c.Save
	switch kind {
	case "image":
		return resolveCommon(global, c.Types.Image.Common)
	case "text":
		return resolveCommon(global, c.Types.Text.Common)
	case "video":
		return resolveCommon(global, c.Types.Video.Common)
	default:
		return Effective{}, fmt.Errorf("unknown type %q", kind)
	}
}

// Validate rejects configurations the pipelines cannot run with.
func (c *AppConfig) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.Save == "" {
		return fmt.Errorf("save root is required")
	}
	if !c.Types.Image.Enabled && !c.Types.Text.Enabled && !c.Types.Video.Enabled {
		return fmt.Errorf("no media types enabled")
	}
	for _, kind := range []string{"image", "text", "video"} {
		if _, err := c.EffectiveFor(kind); err != nil {
			return err
		}
	}
	switch c.Types.Text.Compression {
	case "", "none", "brotli", "gzip":
	default:
		return fmt.Errorf("unknown text compression %q", c.Types.Text.Compression)
	}
	return nil
}
