package syncer

import (
	"time"

	"github.com/lightningnetwork/lnd/queue"
)

// sample is one successfully processed block
type sample struct {
	block       uint64
	chainTime   time.Time
	processedAt time.Time
}

// rates are estimates derived from the trailing window
type rates struct {
	processingPerMinute float64
	networkPerMinute    float64
	averageDelay        time.Duration
	samples             int
}

// window keeps the most recent processed blocks
type window struct {
	buf *queue.CircularBuffer
}

func newWindow(size int) *window {
	// size is validated by Config.Validate
	buf, _ := queue.NewCircularBuffer(size)
	return &window{buf: buf}
}

func (w *window) add(s sample) {
	w.buf.Add(s)
}

func (w *window) samples() []sample {
	items := w.buf.List()
	out := make([]sample, 0, len(items))
	for _, item := range items {
		if s, ok := item.(sample); ok {
			out = append(out, s)
		}
	}
	return out
}

// rates computes throughput over the window. The processing rate uses the
// span of processedAt, the network rate the chain time between the lowest
// and highest block seen.
func (w *window) rates() rates {
	ss := w.samples()
	r := rates{samples: len(ss)}
	if len(ss) == 0 {
		return r
	}

	var delay time.Duration
	lo, hi := ss[0], ss[0]
	for _, s := range ss {
		delay += s.processedAt.Sub(s.chainTime)
		if s.block < lo.block {
			lo = s
		}
		if s.block > hi.block {
			hi = s
		}
	}
	r.averageDelay = delay / time.Duration(len(ss))

	if len(ss) < 2 {
		return r
	}

	if span := ss[len(ss)-1].processedAt.Sub(ss[0].processedAt); span > 0 {
		r.processingPerMinute = float64(len(ss)-1) / span.Minutes()
	}
	if span := hi.chainTime.Sub(lo.chainTime); span > 0 {
		r.networkPerMinute = float64(hi.block-lo.block) / span.Minutes()
	}
	return r
}

// eta estimates how long until lag blocks are caught up; nil when unknown
func (r rates) eta(lag uint64) *time.Duration {
	var perMinute float64
	switch {
	case r.processingPerMinute-r.networkPerMinute > 0:
		perMinute = r.processingPerMinute - r.networkPerMinute
	case r.processingPerMinute > 0:
		perMinute = r.processingPerMinute
	default:
		return nil
	}
	d := time.Duration(float64(lag) / perMinute * float64(time.Minute))
	return &d
}
