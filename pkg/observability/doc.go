// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tenant_id", tenantID).Info("tenant created")
//
// Request-scoped logging picks up the request, user and tenant IDs that the
// HTTP middleware stores in the context:
//
//	observability.FromContext(ctx).WithError(err).Error("switch failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.AuditEmissionFailuresTotal.WithLabelValues("sink_error").Inc()
//
// warden_audit_emission_failures_total is the series to alert on: audit loss
// never fails the triggering request, so this counter is the only signal.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version, db, redisClient)
//	checker.AddCheck("audit", emitter.Healthy, false)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		ServiceName: "warden",
//		Endpoint:    "otel-collector:4317",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
