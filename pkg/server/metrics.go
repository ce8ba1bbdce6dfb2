package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/raterudder/hanbridge/pkg/types"
)

// sensorCollector evaluates every registered reader on each scrape.
type sensorCollector struct {
	s         *Server
	value     *prometheus.Desc
	info      *prometheus.Desc
	available *prometheus.Desc
}

func newSensorCollector(s *Server) *sensorCollector {
	return &sensorCollector{
		s: s,
		value: prometheus.NewDesc(
			"hanbridge_sensor_value",
			"Current value of a numeric, boolean (0/1) or timestamp (unix seconds) reading",
			[]string{"sensor", "unit"}, nil,
		),
		info: prometheus.NewDesc(
			"hanbridge_sensor_info",
			"Text reading, the value is carried in the value label",
			[]string{"sensor", "value"}, nil,
		),
		available: prometheus.NewDesc(
			"hanbridge_device_available",
			"1 if the last poll of the device succeeded",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *sensorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.value
	ch <- c.info
	ch <- c.available
}

// Collect implements prometheus.Collector.
func (c *sensorCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, boolFloat(c.s.store.Availability().Available))

	for _, r := range c.s.registered() {
		v := r.Read(c.s.store)
		switch v.Kind {
		case types.ValueFloat:
			ch <- prometheus.MustNewConstMetric(c.value, prometheus.GaugeValue, v.Float, r.ID, r.Unit)
		case types.ValueBool:
			ch <- prometheus.MustNewConstMetric(c.value, prometheus.GaugeValue, boolFloat(v.Bool), r.ID, r.Unit)
		case types.ValueTime:
			ch <- prometheus.MustNewConstMetric(c.value, prometheus.GaugeValue, float64(v.Time.UnixNano())/1e9, r.ID, r.Unit)
		case types.ValueString:
			ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1, r.ID, v.String)
		}
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
