// Package prometheus exports classdb operational metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	db, _ := classdb.Open(ctx, classdb.WithMetrics(classdbprom.NewCollector(reg, "classdb")))
package prometheus
