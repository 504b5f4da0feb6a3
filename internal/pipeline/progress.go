package pipeline

import (
	"context"
	"time"

	"github.com/Lllllllleong/legaldocumentflow/internal/models"
)

// Phase distinguishes the start of a stage from its completion.
type Phase string

const (
	PhaseStarted  Phase = "started"
	PhaseFinished Phase = "finished"
)

// Event is one progress notification.
type Event struct {
	RunID   string             `json:"runId"`
	Stage   string             `json:"stage"`
	Title   string             `json:"title"`
	Index   int                `json:"index"`
	Total   int                `json:"total"`
	Phase   Phase              `json:"phase"`
	Status  models.StageStatus `json:"status,omitempty"`
	Reason  string             `json:"reason,omitempty"`
	Summary string             `json:"summary,omitempty"`
	At      time.Time          `json:"at"`
}

// ProgressSink receives progress events. Implementations are called from
// the goroutine running the sequencer.
type ProgressSink interface {
	Progress(Event)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(Event)

// Progress implements ProgressSink.
func (f ProgressFunc) Progress(e Event) { f(e) }

type channelSink struct {
	ctx context.Context
	ch  chan<- Event
}

// ChannelSink forwards events to ch so a sequencer running in its own
// goroutine can report to a rendering loop. Sends give up once ctx is done.
func ChannelSink(ctx context.Context, ch chan<- Event) ProgressSink {
	return channelSink{ctx: ctx, ch: ch}
}

func (c channelSink) Progress(e Event) {
	select {
	case c.ch <- e:
	case <-c.ctx.Done():
	}
}
