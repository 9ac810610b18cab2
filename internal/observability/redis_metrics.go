package observability

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentRedis attaches keyspace hit/miss and error counters to every
// command the client issues.
func InstrumentRedis(client *redis.Client) {
	client.AddHook(redisMetricsHook{})
}

type redisMetricsHook struct{}

func (redisMetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			recordRedisError(ctx, err)
		}
		return conn, err
	}
}

func (redisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		recordRedisOutcome(ctx, cmd, err)
		return err
	}
}

func (redisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		for _, cmd := range cmds {
			recordRedisOutcome(ctx, cmd, cmd.Err())
		}
		return err
	}
}

func recordRedisOutcome(ctx context.Context, cmd redis.Cmder, err error) {
	metricsOnce.Do(initMetrics)
	if hits, misses, ok := classifyKeyspaceOutcome(cmd); ok && redisKeyspaceCnt != nil {
		if hits > 0 {
			redisKeyspaceCnt.Add(ctx, hits, metric.WithAttributes(attribute.String("outcome", "hit")))
		}
		if misses > 0 {
			redisKeyspaceCnt.Add(ctx, misses, metric.WithAttributes(attribute.String("outcome", "miss")))
		}
	}
	if err != nil && !errors.Is(err, redis.Nil) && redisErrorsCnt != nil {
		recordRedisError(ctx, err)
	}
}

func recordRedisError(ctx context.Context, err error) {
	metricsOnce.Do(initMetrics)
	if redisErrorsCnt == nil {
		return
	}
	redisErrorsCnt.Add(ctx, 1, metric.WithAttributes(attribute.String("class", classifyRedisError(err))))
}

// classifyKeyspaceOutcome maps read commands onto cache hit/miss counts.
// Commands that are not keyspace reads report ok=false.
func classifyKeyspaceOutcome(cmd redis.Cmder) (hits, misses int64, ok bool) {
	switch c := cmd.(type) {
	case *redis.StringCmd:
		if c.Name() != "get" {
			return 0, 0, false
		}
		if errors.Is(c.Err(), redis.Nil) {
			return 0, 1, true
		}
		if c.Err() == nil {
			return 1, 0, true
		}
		return 0, 0, false
	case *redis.SliceCmd:
		if c.Name() != "mget" || c.Err() != nil {
			return 0, 0, false
		}
		for _, v := range c.Val() {
			if v == nil {
				misses++
			} else {
				hits++
			}
		}
		return hits, misses, true
	default:
		return 0, 0, false
	}
}

func classifyRedisError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "connection") || strings.Contains(msg, "refused") || strings.Contains(msg, "broken pipe"):
		return "connection"
	default:
		return "other"
	}
}
