// SPDX-License-Identifier: MIT

package pipeline

import "errors"

// Per-file failure classes. Each one increments stats.failed, is logged with
// best-effort cleanup, and releases the slot; the run continues.
var (
	ErrProbeFailed      = errors.New("probe failed")
	ErrConvertFailed    = errors.New("convert failed")
	ErrThumbnailFailed  = errors.New("thumbnail failed")
	ErrPreviewFailed    = errors.New("preview failed")
	ErrSoundCheckFailed = errors.New("sound check failed")
	ErrSubtitleExtract  = errors.New("subtitle extraction failed")
	ErrIdentifyFailed   = errors.New("identify failed")
)
