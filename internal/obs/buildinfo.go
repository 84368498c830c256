package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// buildInfo is a constant 1 labelled with version, commit and region backend.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Advisory registry build information.",
		},
		[]string{"version", "commit", "backend"},
	)
)

// InitBuildInfo registers build_info once and sets its value.
func InitBuildInfo(version, commit, backend string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, commit, backend).Set(1)
}
