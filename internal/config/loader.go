// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration with precedence: env > file > defaults.
type Loader struct {
	configPath string
}

// NewLoader creates a loader for the optional YAML file at configPath.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load assembles the effective configuration and validates it.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath) // #nosec G304 -- operator-supplied path
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.Save); err == nil {
		cfg.Save = abs
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	if v := os.Getenv("MEDIADEX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("MEDIADEX_SAVE"); v != "" {
		cfg.Save = v
	}
	if v := os.Getenv("MEDIADEX_CACHE"); v != "" {
		cfg.Cache = v
	}
	if v := os.Getenv("MEDIADEX_SCAN"); v != "" {
		cfg.Scan = strings.Split(v, string(os.PathListSeparator))
	}
	if v := os.Getenv("MEDIADEX_SHASUM"); v != "" {
		cfg.Shasum = v
	}
	if v := os.Getenv("MEDIADEX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MEDIADEX_DATABASE"); v != "" {
		cfg.Services.Database.Path = v
	}
}

// Defaults returns the built-in configuration. Every external tool is
// referenced by a whitespace-split template with $name placeholders.
func Defaults() AppConfig {
	var cfg AppConfig
	cfg.Concurrency = 2
	cfg.Cache = "mediadex-cache.json"
	cfg.Save = "save"
	cfg.LogLevel = "info"
	cfg.Shasum = "sha256sum"
	cfg.Scanner = ScannerConfig{
		Concurrency:    4,
		Recursive:      true,
		Sort:           true,
		FollowSymlinks: false,
	}
	cfg.Services.Database.Path = "catalog"
	cfg.Services.Search.Path = "search.db"

	img := &cfg.Types.Image
	img.Enabled = true
	img.Pattern = "**/*.{jpg,jpeg,png,gif,webp}"
	img.Minimum = Dimensions{Width: 320, Height: 240}
	img.Maximum = Dimensions{Width: 16384, Height: 16384}
	img.Identify = "magick identify -verbose $input"
	img.Thumbnail.Format = "png"
	img.Thumbnail.Geometry = "320x320"
	img.Thumbnail.Template = "magick $input[0] -thumbnail $geometry $output"
	img.Preview.Template = "magick $input -resize 320x320 $output"

	txt := &cfg.Types.Text
	txt.Enabled = true
	txt.Pattern = "**/*.{txt,md}"
	txt.Minimum = 256
	txt.Compression = "gzip"
	txt.SummaryFallback = 512

	vid := &cfg.Types.Video
	vid.Enabled = true
	vid.Pattern = "**/*.{mp4,mkv,avi,mov,webm}"
	vid.Format = "mp4"
	vid.Probe = "ffprobe -v quiet -print_format json -show_format -show_streams $input"
	vid.Convert = "ffmpeg -y -i $input -c:v libx264 -preset medium -c:a aac -movflags +faststart -f $format $output"
	vid.Thumbnail.Format = "jpg"
	vid.Thumbnail.Time = 30
	vid.Thumbnail.Template = "ffmpeg -y -ss $time -i $input -frames:v 1 $output"
	vid.Preview.Duration = 30
	vid.Preview.Template = "ffmpeg -y -i $input -vf select='not(mod(t,$interval))',setpts=N/FRAME_RATE/TB -an $output"
	vid.Sound.Check = true
	vid.Sound.Threshold = -40
	vid.Sound.Template = "ffmpeg -i $input -af volumedetect -vn -f null -"
	vid.Subtitles.Format = "srt"
	vid.Subtitles.Language = "eng"
	vid.Subtitles.Template = "ffmpeg -y -i $input -map 0:s:m:language:$language -c:s srt $output"
	vid.Subtitles.Fallback = "ffmpeg -y -i $input -map 0:s:0 -c:s srt $output"
	vid.Subtitles.Index = "subtitles"

	return cfg
}
