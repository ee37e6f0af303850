package progress

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Bar tracks pipeline build iterations. A nil-safe wrapper so callers can
// pass it around without checking whether progress output is enabled.
type Bar struct {
	bar *progressbar.ProgressBar
}

// New returns a bar rendering to w. If w is nil the bar is silent.
func New(w io.Writer, max int, description string) *Bar {
	if w == nil {
		return &Bar{}
	}

	return &Bar{bar: progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionShowCount(),
	)}
}

func (b *Bar) Add(n int) {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Add(n)
}

func (b *Bar) Finish() {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Finish()
}
