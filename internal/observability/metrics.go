package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce        sync.Once
	repositoryOpsCnt   metric.Int64Counter
	authEventsCnt      metric.Int64Counter
	gatekeeperDecCnt   metric.Int64Counter
	redisKeyspaceCnt   metric.Int64Counter
	redisErrorsCnt     metric.Int64Counter
	credentialStoreCnt metric.Int64Counter
)

func initMetrics() {
	meter := otel.Meter("github.com/evehealth/eve-auth-service")
	repositoryOpsCnt, _ = meter.Int64Counter("repository_operations_total")
	authEventsCnt, _ = meter.Int64Counter("auth_events_total")
	gatekeeperDecCnt, _ = meter.Int64Counter("gatekeeper_decisions_total")
	redisKeyspaceCnt, _ = meter.Int64Counter("redis_keyspace_total")
	redisErrorsCnt, _ = meter.Int64Counter("redis_errors_total")
	credentialStoreCnt, _ = meter.Int64Counter("credential_store_operations_total")
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	metricsOnce.Do(initMetrics)
	if repositoryOpsCnt == nil {
		return
	}
	repositoryOpsCnt.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthEvent(ctx context.Context, operation, outcome string) {
	metricsOnce.Do(initMetrics)
	if authEventsCnt == nil {
		return
	}
	authEventsCnt.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordGatekeeperDecision(ctx context.Context, decision string) {
	metricsOnce.Do(initMetrics)
	if gatekeeperDecCnt == nil {
		return
	}
	gatekeeperDecCnt.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", decision),
	))
}

func RecordCredentialStoreOperation(ctx context.Context, substrate, operation, outcome string) {
	metricsOnce.Do(initMetrics)
	if credentialStoreCnt == nil {
		return
	}
	credentialStoreCnt.Add(ctx, 1, metric.WithAttributes(
		attribute.String("substrate", substrate),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}
