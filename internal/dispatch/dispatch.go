// Package dispatch turns a completion.Outcome into side effects on a chat
// thread and a moderation log.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/apexion-ai/threadbot/internal/completion"
)

// MaxMessageChars is the longest chunk sent as one thread message.
const MaxMessageChars = 1500

// NoURL stands in for a message reference when nothing was sent.
const NoURL = "no url"

// Notice texts.
const (
	emptyResponseNotice = "**Invalid response** - empty response"
	invalidRequestFmt   = "**Invalid request** - %s"
	errorFmt            = "**Error** - %s"
	flaggedNotice       = "⚠️ **This conversation has been flagged by moderation.**"
	blockedNotice       = "❌ **The response has been blocked by moderation.**"
)

// Severity selects how a transport styles a notice.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a structured in-thread message, as opposed to reply content.
type Notice struct {
	Text     string
	Severity Severity
}

// Sent references a delivered message.
type Sent struct {
	ID  string
	URL string // empty when the transport has no addressable link
}

// Thread is the destination conversation.
type Thread interface {
	ID() string
	Send(ctx context.Context, text string) (Sent, error)
	Notify(ctx context.Context, n Notice) (Sent, error)
	// Close retires the thread so no further generation happens in it.
	Close(ctx context.Context) error
}

// Report is one moderation-log entry. Categories carries the outcome's
// status text, e.g. "from_response:(violence) ".
type Report struct {
	User       string
	Categories string
	Text       string
	URL        string
	ThreadID   string
}

// ModerationLog receives moderation reports, separate from the thread.
type ModerationLog interface {
	Flagged(ctx context.Context, r Report) error
	Blocked(ctx context.Context, r Report) error
}

// Dispatcher is stateless and safe for concurrent use.
type Dispatcher struct {
	modlog   ModerationLog
	maxChars int
	logger   *zap.Logger
}

// New creates a Dispatcher. modlog may be nil, in which case moderation
// reports are only logged.
func New(modlog ModerationLog, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{modlog: modlog, maxChars: MaxMessageChars, logger: logger}
}

// Dispatch performs the side effects required by outcome. It panics on an
// Outcome implementation it does not know.
func (d *Dispatcher) Dispatch(ctx context.Context, user string, thread Thread, outcome completion.Outcome) error {
	log := d.logger.With(
		zap.String("thread", thread.ID()),
		zap.String("user", user),
		zap.Stringer("status", outcome.Status()),
	)
	log.Debug("dispatching outcome")

	switch o := outcome.(type) {
	case completion.OK:
		_, err := d.sendReply(ctx, thread, o.Reply)
		return err

	case completion.Flagged:
		last, err := d.sendReply(ctx, thread, o.Reply)
		if err != nil {
			return err
		}
		url := last.URL
		if url == "" {
			url = NoURL
		}
		logErr := d.report(ctx, log, true, Report{
			User:       user,
			Categories: o.StatusText(),
			Text:       o.Reply,
			URL:        url,
			ThreadID:   thread.ID(),
		})
		return errors.Join(logErr, d.notify(ctx, thread, flaggedNotice, SeverityWarning))

	case completion.Blocked:
		logErr := d.report(ctx, log, false, Report{
			User:       user,
			Categories: o.StatusText(),
			Text:       o.Suppressed,
			URL:        NoURL,
			ThreadID:   thread.ID(),
		})
		return errors.Join(logErr, d.notify(ctx, thread, blockedNotice, SeverityError))

	case completion.TooLong:
		log.Info("closing thread", zap.String("detail", o.Detail))
		if err := thread.Close(ctx); err != nil {
			return fmt.Errorf("close thread %s: %w", thread.ID(), err)
		}
		return nil

	case completion.InvalidRequest:
		return d.notify(ctx, thread, fmt.Sprintf(invalidRequestFmt, o.Detail), SeverityWarning)

	case completion.OtherError:
		return d.notify(ctx, thread, fmt.Sprintf(errorFmt, o.Detail), SeverityWarning)

	default:
		panic(fmt.Sprintf("dispatch: unhandled outcome %T", outcome))
	}
}

// sendReply sends text in order as chunks and returns the last one sent.
// Empty text is answered with the empty-response notice instead.
func (d *Dispatcher) sendReply(ctx context.Context, thread Thread, text string) (Sent, error) {
	if text == "" {
		sent, err := thread.Notify(ctx, Notice{Text: emptyResponseNotice, Severity: SeverityWarning})
		if err != nil {
			return Sent{}, fmt.Errorf("notify %s: %w", thread.ID(), err)
		}
		return sent, nil
	}
	var last Sent
	for i, chunk := range SplitMessage(text, d.maxChars) {
		sent, err := thread.Send(ctx, chunk)
		if err != nil {
			return last, fmt.Errorf("send reply chunk %d to %s: %w", i, thread.ID(), err)
		}
		last = sent
	}
	return last, nil
}

func (d *Dispatcher) notify(ctx context.Context, thread Thread, text string, sev Severity) error {
	if _, err := thread.Notify(ctx, Notice{Text: text, Severity: sev}); err != nil {
		return fmt.Errorf("notify %s: %w", thread.ID(), err)
	}
	return nil
}

func (d *Dispatcher) report(ctx context.Context, log *zap.Logger, flagged bool, r Report) error {
	log.Info("moderation report",
		zap.Bool("flagged", flagged),
		zap.String("categories", r.Categories),
		zap.String("url", r.URL))
	if d.modlog == nil {
		return nil
	}
	var err error
	if flagged {
		err = d.modlog.Flagged(ctx, r)
	} else {
		err = d.modlog.Blocked(ctx, r)
	}
	if err != nil {
		log.Error("moderation log failed", zap.Error(err))
		return fmt.Errorf("moderation log: %w", err)
	}
	return nil
}

// SplitMessage cuts text into chunks of at most n characters, preserving
// order. Empty text yields no chunks.
func SplitMessage(text string, n int) []string {
	if text == "" {
		return nil
	}
	if n <= 0 {
		return []string{text}
	}
	r := []rune(text)
	chunks := make([]string, 0, (len(r)+n-1)/n)
	for len(r) > n {
		chunks = append(chunks, string(r[:n]))
		r = r[n:]
	}
	return append(chunks, string(r))
}
