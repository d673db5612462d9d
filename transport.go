package helloadd

import "github.com/prometheus/client_golang/prometheus"

//go:generate mockgen -source=transport.go -destination=mock/mock_transport.go

// Transport is a Server bound to a wire protocol.
type Transport interface {
	Close() error
	IsConnected() bool
	Register(route Route, hdl *Handler)
	RegisterMetrics(responseTime *prometheus.HistogramVec, errorCount *prometheus.GaugeVec)
}
