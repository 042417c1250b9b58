package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

func parse(t *testing.T, body string) map[string]*dto.MetricFamily {
	t.Helper()
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse metrics: %v", err)
	}
	return mfs
}

func value(mf *dto.MetricFamily) float64 {
	m := mf.GetMetric()[0]
	if m.GetGauge() != nil {
		return m.GetGauge().GetValue()
	}
	return m.GetCounter().GetValue()
}

func TestHandlerExposesCounters(t *testing.T) {
	var s Stats
	s.ConnectionOpened()
	s.ConnectionOpened()
	s.ConnectionClosed()
	s.MessageReceived()
	s.NicknameChanged()
	s.FramesDelivered(3)
	s.SendFailed()

	srv := httptest.NewServer(Handler(&s, func() int { return 1 }))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Expected text/plain content type, got %q", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	mfs := parse(t, string(body))

	want := map[string]float64{
		PeersConnected:   1,
		ConnectionsTotal: 2,
		DisconnectsTotal: 1,
		ErrorsTotal:      0,
		MessagesTotal:    1,
		RenamesTotal:     1,
		DeliveredTotal:   3,
		SendFailedTotal:  1,
	}
	for name, v := range want {
		mf, ok := mfs[name]
		if !ok {
			t.Errorf("Missing metric family %s", name)
			continue
		}
		if got := value(mf); got != v {
			t.Errorf("%s = %v, want %v", name, got, v)
		}
	}
	if mfs[PeersConnected].GetType() != dto.MetricType_GAUGE {
		t.Errorf("Expected %s to be a gauge", PeersConnected)
	}
}
