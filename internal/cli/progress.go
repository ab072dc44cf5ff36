package cli

import (
	"io"
	"time"

	"github.com/forPelevin/kfcut/internal/types"
	"github.com/forPelevin/kfcut/internal/usecase"
	"github.com/schollz/progressbar/v3"
)

var _ usecase.Observer = (*progressUI)(nil)

// progressUI draws one bar step per engine stage on w.
type progressUI struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnPlan(plan types.CutPlan, stages int) {
	p.bar = progressbar.NewOptions(stages,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(plan.Case.String()),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (p *progressUI) OnStageStart(stage string) {
	if p.bar != nil {
		p.bar.Describe(stage)
	}
}

func (p *progressUI) OnStageDone(_ string, _ time.Duration) {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// Close finishes the bar on success and wipes it on failure so the error
// line stands alone.
func (p *progressUI) Close(ok bool) {
	if p.bar == nil {
		return
	}
	if ok {
		_ = p.bar.Finish()
		_, _ = io.WriteString(p.w, "\n")
		return
	}
	_ = p.bar.Clear()
}
