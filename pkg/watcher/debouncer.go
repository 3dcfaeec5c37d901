package watcher

import (
	"context"
	"time"

	"github.com/trialviz/soa-analyzer/pkg/logging"
)

// Debouncer batches rapid file system events so a pipeline writing all three
// input files in quick succession triggers one rebuild, not three.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer.
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing.
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

// run accumulates events until the quiet period elapses or maxWait forces a
// flush. Document changes flush first since they invalidate everything else.
func (d *Debouncer) run(ctx context.Context) {
	accumulated := make(map[ChangeType][]string)
	eventCount := 0

	var quiet, limit <-chan time.Time
	var quietTimer, limitTimer *time.Timer

	flush := func() {
		if eventCount == 0 {
			return
		}
		logging.Debug("flushing accumulated change events", "count", eventCount)

		for _, t := range []ChangeType{ChangeTypeDocument, ChangeTypeOverlay, ChangeTypeProvenance} {
			if paths := accumulated[t]; len(paths) > 0 {
				d.output <- ChangeEvent{Type: t, Paths: paths, Timestamp: time.Now()}
			}
		}

		accumulated = make(map[ChangeType][]string)
		eventCount = 0

		if quietTimer != nil {
			quietTimer.Stop()
		}
		if limitTimer != nil {
			limitTimer.Stop()
		}
		quiet, limit = nil, nil
		quietTimer, limitTimer = nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			close(d.output)
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				close(d.output)
				return
			}

			accumulated[event.Type] = append(accumulated[event.Type], event.Paths...)
			eventCount++

			if quietTimer == nil {
				quietTimer = time.NewTimer(d.quietPeriod)
				quiet = quietTimer.C
			} else {
				if !quietTimer.Stop() {
					select {
					case <-quietTimer.C:
					default:
					}
				}
				quietTimer.Reset(d.quietPeriod)
			}

			// The max wait timer starts on the first event of a burst and is
			// never extended, so a steady stream of saves still flushes.
			if limitTimer == nil {
				limitTimer = time.NewTimer(d.maxWait)
				limit = limitTimer.C
			}

		case <-quiet:
			flush()

		case <-limit:
			flush()
		}
	}
}

// Output returns the channel of debounced events.
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
