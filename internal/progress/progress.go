// Package progress draws stderr progress for hit parsing and classification.
package progress

import (
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/Doomsbay/ContigKit/internal/logger"
	"github.com/Doomsbay/ContigKit/internal/tsv"
)

var _ tsv.Ticker = (*Bar)(nil)

const (
	refreshEvery = 250 * time.Millisecond
	barWidth     = 30
	// spinnerType selects the progressbar spinner used when the total is unknown.
	spinnerType = 14
)

// Bar counts items toward a known total. With total <= 0 it is a spinner
// that shows the running count and rate but no ETA. A nil Bar ignores every
// call, and New returns nil when progress is disabled.
type Bar struct {
	bar   *progressbar.ProgressBar
	label string
	done  int
}

// New returns a stderr bar over total items labelled label.
func New(total int, label string, enabled bool) *Bar {
	if !enabled {
		return nil
	}
	return newBar(os.Stderr, total, label)
}

func newBar(w io.Writer, total int, label string) *Bar {
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(label),
		progressbar.OptionThrottle(refreshEvery),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
	}
	if total > 0 {
		opts = append(opts, progressbar.OptionSetWidth(barWidth), progressbar.OptionSetPredictTime(true))
	} else {
		total = -1
		opts = append(opts, progressbar.OptionSpinnerType(spinnerType))
	}
	return &Bar{bar: progressbar.NewOptions(total, opts...), label: label}
}

// Increment records one finished item. It satisfies tsv.Ticker.
func (b *Bar) Increment() {
	if b == nil {
		return
	}
	b.done++
	_ = b.bar.Add(1)
}

// Finish clears the bar from the terminal.
func (b *Bar) Finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
	logger.Debug("progress finished", zap.String("label", b.label), zap.Int("items", b.done))
}
