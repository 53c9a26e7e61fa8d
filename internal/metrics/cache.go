package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheLookupsTotal) }

var cacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "genai_cache_lookups_total",
		Help: "Similarity cache lookups by path and result.",
	},
	[]string{"path", "result"}, // e.g., path="job", result="hit"
)

func IncCacheLookup(path, result string) {
	cacheLookupsTotal.WithLabelValues(norm(path), norm(result)).Inc()
}
