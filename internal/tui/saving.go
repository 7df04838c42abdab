package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sadopc/veresia/internal/pipeline"
)

// saveTracker follows the single save the canvas may have in flight. A
// second save is refused until the first one reports back.
type saveTracker struct {
	inFlight  bool
	startedAt time.Time

	last     *pipeline.Outcome
	lastErr  error
	lastPath string
}

// begin marks a save as started. It returns false if one is already running.
func (t *saveTracker) begin(now time.Time) bool {
	if t.inFlight {
		return false
	}
	t.inFlight = true
	t.startedAt = now
	return true
}

func (t *saveTracker) finish(msg saveDoneMsg) {
	t.inFlight = false
	t.startedAt = time.Time{}
	out := msg.outcome
	t.last = &out
	t.lastErr = msg.err
	t.lastPath = msg.image
}

func (t saveTracker) running() bool {
	return t.inFlight
}

func (t saveTracker) elapsed(now time.Time) time.Duration {
	if !t.inFlight {
		return 0
	}
	return now.Sub(t.startedAt)
}

// waitForSave blocks on the background save and reports its result.
func waitForSave(task *pipeline.Task, image string) tea.Cmd {
	return func() tea.Msg {
		out, err := task.Wait()
		return saveDoneMsg{outcome: out, err: err, image: image}
	}
}

// saveStatus describes a finished save for the status bar. A failed
// recognition and an empty page are reported differently.
func saveStatus(msg saveDoneMsg) statusMsg {
	out := msg.outcome
	switch {
	case msg.err != nil && out.PageID == 0:
		return statusMsg{text: fmt.Sprintf("Save failed: %v", msg.err), isError: true}
	case msg.err != nil:
		return statusMsg{
			text:    fmt.Sprintf("Page #%d saved with %d entries, then failed: %v", out.PageID, out.Count(), msg.err),
			isError: true,
		}
	case out.RecognitionErr != nil:
		return statusMsg{
			text:    fmt.Sprintf("Page #%d saved, recognition failed: %v", out.PageID, out.RecognitionErr),
			isError: true,
		}
	case out.Count() == 0:
		return statusMsg{text: fmt.Sprintf("Page #%d saved, no entries recognized", out.PageID)}
	}
	text := fmt.Sprintf("Page #%d saved: %d entries", out.PageID, out.Count())
	if n := len(out.Crossed); n > 0 {
		text += fmt.Sprintf(", %d crossed out", n)
	}
	return statusMsg{text: text}
}
