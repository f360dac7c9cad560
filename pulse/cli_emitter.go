package pulse

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pterm/pterm"
)

// CLIEmitter renders job progress in a terminal with a pterm progress bar
type CLIEmitter struct {
	title string
	bar   *pterm.ProgressbarPrinter
}

// NewCLIEmitter creates an emitter whose bar is labeled title
func NewCLIEmitter(title string) *CLIEmitter {
	return &CLIEmitter{title: title}
}

// EmitStage prints the stage and (re)starts the bar
func (e *CLIEmitter) EmitStage(stage, message string) {
	e.stopBar()
	pterm.Info.Printfln("[%s] %s", stage, message)
	bar, err := pterm.DefaultProgressbar.WithTotal(100).WithTitle(e.title).WithRemoveWhenDone(true).Start()
	if err == nil {
		e.bar = bar
	}
}

// EmitProgress advances the bar to fraction
func (e *CLIEmitter) EmitProgress(fraction float64, _ map[string]interface{}) {
	if e.bar == nil {
		return
	}
	target := int(fraction * 100)
	if target > 100 {
		target = 100
	}
	if delta := target - e.bar.Current; delta > 0 {
		e.bar.Add(delta)
	}
}

// EmitComplete stops the bar and prints the summary sorted by key
func (e *CLIEmitter) EmitComplete(summary map[string]interface{}) {
	e.stopBar()
	pterm.Success.Println(e.title + " complete")
	if len(summary) == 0 {
		return
	}
	pterm.Println(formatSummary(summary))
}

// EmitError stops the bar and prints the failure
func (e *CLIEmitter) EmitError(stage string, err error) {
	e.stopBar()
	pterm.Error.Printfln("[%s] %v", stage, err)
}

// EmitInfo prints an informational line
func (e *CLIEmitter) EmitInfo(message string) {
	pterm.Info.Println(message)
}

func (e *CLIEmitter) stopBar() {
	if e.bar != nil {
		_, _ = e.bar.Stop()
		e.bar = nil
	}
}

func formatSummary(summary map[string]interface{}) string {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", k, summary[k])
	}
	return strings.TrimRight(b.String(), "\n")
}
