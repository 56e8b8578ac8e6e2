package worker

import (
	"context"
	"encoding/json"
	"time"

	"agrotic/internal/dto"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueNotificaciones = "jobs:notificaciones"

	JobMovimiento = "movimiento"
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// listPusher is the slice of the Redis client the dispatcher and the DLQ use.
type listPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// publisher is the slice of the Redis client the workers publish through.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Dispatcher enqueues movement notifications into a Redis list.
// The worker pool dequeues them via BRPOP. It satisfies service.Notificador.
type Dispatcher struct {
	q listPusher
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{q: rdb}
}

// NotificarMovimiento pushes a movement event for asynchronous fan-out.
func (d *Dispatcher) NotificarMovimiento(ctx context.Context, evento dto.MovimientoEvento) error {
	return d.enqueue(ctx, QueueNotificaciones, JobMovimiento, evento)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{Type: jobType, Payload: data}
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.q.LPush(ctx, queue, encoded).Err()
}

// Pool consumes notification jobs and publishes each movement event on the
// configured pub/sub channel. Jobs that keep failing land in the DLQ.
type Pool struct {
	rdb         *redis.Client
	pub         publisher
	dlq         listPusher
	channel     string
	maxAttempts int
	backoff     time.Duration
}

func NewPool(rdb *redis.Client, channel string) *Pool {
	return &Pool{
		rdb:         rdb,
		pub:         rdb,
		dlq:         rdb,
		channel:     channel,
		maxAttempts: 3,
		backoff:     time.Second,
	}
}

// Start launches numWorkers goroutines consuming the notification queue.
// Each goroutine blocks on BRPOP and uses no CPU while idle.
func (p *Pool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go p.runWorker(ctx, i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop: waits up to 5s then loops to check ctx
			result, err := p.rdb.BRPop(ctx, 5*time.Second, QueueNotificaciones).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			p.processJob(ctx, result[0], result[1])
		}
	}
}

func (p *Pool) processJob(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		quoted, _ := json.Marshal(raw)
		sendToDLQ(ctx, p.dlq, queue, "", quoted, "json invalido", 0)
		return
	}

	switch job.Type {
	case JobMovimiento:
		p.publicarMovimiento(ctx, queue, job)
	default:
		log.Warn().Str("type", job.Type).Str("queue", queue).Msg("unknown job type")
		sendToDLQ(ctx, p.dlq, queue, job.Type, job.Payload, "tipo de job desconocido", 0)
	}
}

func (p *Pool) publicarMovimiento(ctx context.Context, queue string, job Job) {
	var evento dto.MovimientoEvento
	if err := json.Unmarshal(job.Payload, &evento); err != nil {
		sendToDLQ(ctx, p.dlq, queue, job.Type, job.Payload, "payload invalido: "+err.Error(), 0)
		return
	}

	attempts := 0
	err := withRetry(ctx, p.maxAttempts, p.backoff, func(attempt int) error {
		attempts = attempt + 1
		if err := p.pub.Publish(ctx, p.channel, []byte(job.Payload)).Err(); err != nil {
			log.Warn().Err(err).
				Str("movimiento_id", evento.MovimientoID).
				Int("attempt", attempts).
				Msg("notificacion: publish failed, retrying")
			return err
		}
		return nil
	})
	if err != nil {
		sendToDLQ(ctx, p.dlq, queue, job.Type, job.Payload, err.Error(), attempts)
		return
	}
	log.Debug().Str("movimiento_id", evento.MovimientoID).Str("lote_id", evento.LoteID).Msg("notificacion publicada")
}

// withRetry calls fn up to maxAttempts times with exponential backoff
// (base, 2×base, …). Returns nil if any attempt succeeds; last error otherwise.
func withRetry(ctx context.Context, maxAttempts int, base time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := base * time.Duration(1<<uint(i-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
