// Copyright 2026 The PetalFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package adapter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cast"

	"github.com/petalflow/petalflow/pkg/graph"
)

var (
	progressTitle = lipgloss.NewStyle().Bold(true)
	progressOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	progressFail  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	progressDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// progress prints per-node completion lines and a run summary to the
// terminal as the run advances.
type progress struct {
	out io.Writer

	mu    sync.Mutex
	done  int
	total int
}

func newProgress(settings map[string]any, _ *slog.Logger) (graph.Hook, error) {
	p := &progress{out: os.Stderr}
	if settings["quiet"] != nil && cast.ToBool(settings["quiet"]) {
		p.out = io.Discard
	}
	return p, nil
}

func (p *progress) OnRunStart(_ context.Context, info graph.RunInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = 0
	p.total = info.NodeCount
	fmt.Fprintf(p.out, "%s %s\n",
		progressTitle.Render("run"),
		fmt.Sprintf("%s (%d nodes)", info.Pipeline, info.NodeCount))
}

func (p *progress) OnNodeDone(_ context.Context, result graph.NodeResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++

	mark := progressOK.Render("ok")
	if result.Err != nil {
		mark = progressFail.Render("failed")
	}
	fmt.Fprintf(p.out, "  [%d/%d] %s %s %s\n",
		p.done, p.total, result.Node, mark,
		progressDim.Render(formatElapsed(result.Duration)))
}

func (p *progress) OnRunEnd(_ context.Context, result graph.RunResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if result.Err != nil {
		fmt.Fprintf(p.out, "%s %s after %s: %v\n",
			result.Pipeline, progressFail.Render("failed"),
			formatElapsed(result.Duration), result.Err)
		return
	}
	fmt.Fprintf(p.out, "%s %s in %s\n",
		result.Pipeline, progressOK.Render("completed"),
		formatElapsed(result.Duration))
}

func formatElapsed(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
