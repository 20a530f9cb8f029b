package app

import (
	"fmt"
	"strings"
)

func (a *App) listeningOverlay() string {
	text := a.hint
	if a.notice != "" {
		if a.now().Before(a.noticeUntil) {
			text = a.notice
		} else {
			a.notice = ""
		}
	}
	return a.withInfo(text)
}

func (a *App) replayOverlay(i, total int) string {
	text := fmt.Sprintf("REPLAY x%.2f", a.sess.Speed())
	if a.sess.Snapshot().ShowInfo {
		text += fmt.Sprintf("  %d/%d", i+1, total)
	}
	return a.withInfo(text)
}

// withInfo appends the session details when the info overlay is on.
func (a *App) withInfo(text string) string {
	snap := a.sess.Snapshot()
	if !snap.ShowInfo {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	fmt.Fprintf(&b, "\nCaptures: %d  Speed: x%.2f", snap.Captures, snap.Speed)
	if snap.LastHeard != "" {
		fmt.Fprintf(&b, "\nHeard: %q", snap.LastHeard)
	}
	return b.String()
}
