// Package metrics counts hub activity and renders it in the Prometheus text
// exposition format.
package metrics

import (
	"io"
	"net/http"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"
)

// Metric names exposed on /metrics.
const (
	PeersConnected   = "relaychat_peers_connected"
	ConnectionsTotal = "relaychat_connections_total"
	DisconnectsTotal = "relaychat_disconnects_total"
	ErrorsTotal      = "relaychat_connection_errors_total"
	MessagesTotal    = "relaychat_messages_received_total"
	RenamesTotal     = "relaychat_nickname_changes_total"
	DeliveredTotal   = "relaychat_frames_delivered_total"
	SendFailedTotal  = "relaychat_send_failures_total"
)

// Stats holds the hub counters. The zero value is ready to use.
type Stats struct {
	connections atomic.Uint64
	disconnects atomic.Uint64
	errors      atomic.Uint64
	messages    atomic.Uint64
	renames     atomic.Uint64
	delivered   atomic.Uint64
	sendFailed  atomic.Uint64
}

func (s *Stats) ConnectionOpened()     { s.connections.Add(1) }
func (s *Stats) ConnectionClosed()     { s.disconnects.Add(1) }
func (s *Stats) ConnectionFailed()     { s.errors.Add(1) }
func (s *Stats) MessageReceived()      { s.messages.Add(1) }
func (s *Stats) NicknameChanged()      { s.renames.Add(1) }
func (s *Stats) FramesDelivered(n int) { s.delivered.Add(uint64(n)) }
func (s *Stats) SendFailed()           { s.sendFailed.Add(1) }

// Families snapshots the counters, plus the live peer gauge.
func (s *Stats) Families(connected int) []*dto.MetricFamily {
	return []*dto.MetricFamily{
		gauge(PeersConnected, "Peers currently registered with the hub.", float64(connected)),
		counter(ConnectionsTotal, "Peer connections opened.", s.connections.Load()),
		counter(DisconnectsTotal, "Peer connections closed normally.", s.disconnects.Load()),
		counter(ErrorsTotal, "Peer connections ended by a transport error.", s.errors.Load()),
		counter(MessagesTotal, "Text frames received from peers.", s.messages.Load()),
		counter(RenamesTotal, "Nickname changes applied.", s.renames.Load()),
		counter(DeliveredTotal, "Frames queued to peers by broadcasts.", s.delivered.Load()),
		counter(SendFailedTotal, "Broadcast sends that failed for one peer.", s.sendFailed.Load()),
	}
}

// Write renders the families in the text exposition format.
func (s *Stats) Write(w io.Writer, connected int) error {
	for _, mf := range s.Families(connected) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the counters; connected reports the live peer count.
func Handler(s *Stats, connected func() int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		if err := s.Write(w, connected()); err != nil {
			log.Error().Err(err).Str("module", "metrics").Msg("write metrics")
		}
	})
}

func counter(name, help string, v uint64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(float64(v))}}},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}
