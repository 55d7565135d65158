// Package notify posts plain-text HTTP notifications about a run. The
// primary target is ntfy.sh, but any HTTP webhook works.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"
)

// Options selects which run events are posted.
type Options struct {
	OnIteration bool
	OnComplete  bool
	OnStop      bool
}

// Notifier posts notifications for selected loop events.
type Notifier struct {
	url    string
	title  string
	opts   Options
	client *http.Client
}

// New creates a Notifier. projectName is sent as the X-Title header; if
// empty, "Codchestra" is used instead.
func New(notifURL, projectName string, opts Options) *Notifier {
	title := "Codchestra"
	if projectName != "" {
		title = projectName
	}
	return &Notifier{
		url:    notifURL,
		title:  title,
		opts:   opts,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Hook returns the loop hook that delivers notifications. A failed POST is
// returned to the loop, which logs it and carries on.
func (n *Notifier) Hook() loop.Hook {
	return loop.Hook{
		Name:      "notify",
		AfterLoop: n.afterLoop,
		AfterRun:  n.afterRun,
	}
}

func (n *Notifier) afterLoop(ctx context.Context, it loop.IterationInfo) error {
	if !n.opts.OnIteration {
		return nil
	}
	msg := fmt.Sprintf("Loop %d/%d finished", it.Loop, it.MaxLoops)
	if it.Status != nil {
		msg += ": " + it.Status.String()
	}
	return n.post(ctx, "", msg)
}

func (n *Notifier) afterRun(ctx context.Context, _ loop.RunInfo, res loop.Result) error {
	switch {
	case res.OK && n.opts.OnComplete:
		return n.post(ctx, "white_check_mark", fmt.Sprintf("Complete after %d loop(s)", res.Loop))
	case !res.OK && n.opts.OnStop:
		msg := fmt.Sprintf("Stopped: %s (loop %d)", res.ExitReason.Describe(), res.Loop)
		if res.LastStatus != nil && res.LastStatus.Summary != "" {
			msg += "\n" + res.LastStatus.Summary
		}
		return n.post(ctx, "warning", msg)
	}
	return nil
}

// post sends message as a text/plain POST. tags maps to the ntfy Tags
// header and is omitted when empty.
func (n *Notifier) post(ctx context.Context, tags, message string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Title", n.title)
	if tags != "" {
		req.Header.Set("X-Tags", tags)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: %s returned %s", n.url, resp.Status)
	}
	return nil
}
