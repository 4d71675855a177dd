// Package metrics keeps per-source pipeline counters and renders them in the
// Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/quakewatch/quakewatch/internal/quake"
)

// Namespace prefixes every exported metric name.
const Namespace = "quakewatch"

// Counter names one per-source counter.
type Counter int

const (
	FramesReceived Counter = iota
	FramesMalformed
	FramesIgnored
	EventsBelowThreshold
	EventsQualified
	EventsSuppressed
	NotificationsQueued
	NotificationsDelivered
	NotificationsFailed
	Reconnects

	numCounters
)

var counterMeta = [numCounters]struct{ name, help string }{
	FramesReceived:         {"frames_received_total", "Frames read from the source stream."},
	FramesMalformed:        {"frames_malformed_total", "Frames that failed to decode."},
	FramesIgnored:          {"frames_ignored_total", "Heartbeat, cancellation and drill frames."},
	EventsBelowThreshold:   {"events_below_threshold_total", "Events under the configured threshold."},
	EventsQualified:        {"events_qualified_total", "Events meeting the configured threshold."},
	EventsSuppressed:       {"events_suppressed_total", "Qualifying events rejected by the cooldown."},
	NotificationsQueued:    {"notifications_queued_total", "Notifications handed to the dispatcher."},
	NotificationsDelivered: {"notifications_delivered_total", "Notifications accepted by the gateway."},
	NotificationsFailed:    {"notifications_failed_total", "Notifications dropped after failure."},
	Reconnects:             {"reconnects_total", "Stream connections lost and re-dialled."},
}

// Name returns the fully qualified metric name.
func (c Counter) Name() string {
	if c < 0 || c >= numCounters {
		return fmt.Sprintf("%s_unknown_%d", Namespace, int(c))
	}
	return Namespace + "_" + counterMeta[c].name
}

type row [numCounters]atomic.Uint64

// Counters is a set of per-source counters. It is safe for concurrent use.
type Counters struct {
	mu   sync.RWMutex
	rows map[quake.Source]*row
}

// New returns Counters with zeroed rows for sources so they appear in the
// exposition before any traffic.
func New(sources ...quake.Source) *Counters {
	c := &Counters{rows: make(map[quake.Source]*row)}
	for _, s := range sources {
		c.rows[s] = &row{}
	}
	return c
}

// Inc adds one to counter for src.
func (c *Counters) Inc(src quake.Source, counter Counter) {
	if counter < 0 || counter >= numCounters {
		return
	}
	c.row(src)[counter].Add(1)
}

// Get returns the current value of counter for src.
func (c *Counters) Get(src quake.Source, counter Counter) uint64 {
	if counter < 0 || counter >= numCounters {
		return 0
	}
	c.mu.RLock()
	r, ok := c.rows[src]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	return r[counter].Load()
}

// Families returns one counter MetricFamily per Counter, labelled by source.
func (c *Counters) Families() []*dto.MetricFamily {
	c.mu.RLock()
	sources := make([]quake.Source, 0, len(c.rows))
	for s := range c.rows {
		sources = append(sources, s)
	}
	c.mu.RUnlock()
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	out := make([]*dto.MetricFamily, 0, numCounters)
	for i := Counter(0); i < numCounters; i++ {
		mf := &dto.MetricFamily{
			Name: proto.String(i.Name()),
			Help: proto.String(counterMeta[i].help),
			Type: dto.MetricType_COUNTER.Enum(),
		}
		for _, s := range sources {
			mf.Metric = append(mf.Metric, &dto.Metric{
				Label:   []*dto.LabelPair{sourceLabel(s)},
				Counter: &dto.Counter{Value: proto.Float64(float64(c.Get(s, i)))},
			})
		}
		out = append(out, mf)
	}
	return out
}

// Gauge builds a gauge family with one sample per source.
func Gauge(name, help string, values map[quake.Source]float64) *dto.MetricFamily {
	sources := make([]quake.Source, 0, len(values))
	for s := range values {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	mf := &dto.MetricFamily{
		Name: proto.String(Namespace + "_" + name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, s := range sources {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label: []*dto.LabelPair{sourceLabel(s)},
			Gauge: &dto.Gauge{Value: proto.Float64(values[s])},
		})
	}
	return mf
}

// Format is the exposition format Write produces.
var Format = expfmt.NewFormat(expfmt.TypeTextPlain)

// Write encodes families to w in the text exposition format.
func Write(w io.Writer, families []*dto.MetricFamily) error {
	enc := expfmt.NewEncoder(w, Format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func (c *Counters) row(src quake.Source) *row {
	c.mu.RLock()
	r, ok := c.rows[src]
	c.mu.RUnlock()
	if ok {
		return r
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok = c.rows[src]; !ok {
		r = &row{}
		c.rows[src] = r
	}
	return r
}

func sourceLabel(s quake.Source) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String("source"), Value: proto.String(string(s))}
}
