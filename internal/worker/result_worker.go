package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/learnly/prepexam-backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker retries completion writes that failed on the request path.
// The engine computes the score in memory and surfaces the final state to
// the learner immediately; this worker only makes it durable.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

type resultPayload struct {
	SessionID string `json:"session_id"`
	Score     int    `json:"score"`
	TimeSpent int    `json:"time_spent_seconds"`
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*resultPayload, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p resultPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

// ----------------------------------------------------------------
// Batch update wrapper
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*resultPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkCompleteSessions(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk completion failed, using fallback")

		for _, p := range batch {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed — requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
		}
	}
}

// ----------------------------------------------------------------
// BULK PostgreSQL UPDATE using UNNEST + alias
// ----------------------------------------------------------------

func (w *ResultWorker) bulkCompleteSessions(ctx context.Context, batch []*resultPayload) error {
	n := len(batch)

	sessionIDs := make([]uuid.UUID, 0, n)
	scores := make([]int, 0, n)
	timesSpent := make([]int, 0, n)
	completedAts := make([]time.Time, n)

	now := time.Now()
	for i, p := range batch {
		sID, err := uuid.Parse(p.SessionID)
		if err != nil {
			return err
		}
		sessionIDs = append(sessionIDs, sID)
		scores = append(scores, p.Score)
		timesSpent = append(timesSpent, p.TimeSpent)
		completedAts[i] = now
	}

	query := `
		UPDATE exam_sessions AS s
		SET completed = TRUE,
		    score = t.score,
		    time_spent_seconds = t.time_spent_seconds,
		    completed_at = t.completed_at
		FROM (
			SELECT
				u.id,
				u.score,
				u.time_spent_seconds,
				u.completed_at
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::int[],
				$4::timestamptz[]
			) AS u (id, score, time_spent_seconds, completed_at)
		) AS t
		WHERE s.id = t.id
		  AND s.completed = FALSE
	`

	_, err := w.pool.Exec(ctx, query, sessionIDs, scores, timesSpent, completedAts)
	return err
}

// ----------------------------------------------------------------
// FALLBACK single update
// ----------------------------------------------------------------

func (w *ResultWorker) persistSingle(ctx context.Context, p *resultPayload) error {
	sID, err := uuid.Parse(p.SessionID)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET completed = TRUE,
		     score = $1,
		     time_spent_seconds = $2,
		     completed_at = NOW()
		 WHERE id = $3 AND completed = FALSE`,
		p.Score, p.TimeSpent, sID,
	)

	return err
}
