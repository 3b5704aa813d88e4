package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const (
	taskTypeAudit = "audit:record"
	queueAudit    = "audit"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink はイベントを Asynq のキューに投入し、ワーカー側で書き出します。
// リクエスト処理をログ出力先の遅延から切り離したい場合に使います。
type QueueSink struct {
	client   enqueuer
	closer   func() error
	server   *asynq.Server
	mux      *asynq.ServeMux
	delegate Sink
	logger   zerolog.Logger
}

// NewQueueSink は redisURL の Redis をキューとする QueueSink を作成します。
// 取り出したイベントは delegate に渡されます。
func NewQueueSink(redisURL string, delegate Sink, logger zerolog.Logger) (*QueueSink, error) {
	if delegate == nil {
		return nil, errors.New("delegate is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueAudit: 1,
			},
			Logger: asynqLogger{logger: logger},
		},
	)

	s := &QueueSink{
		client:   client,
		closer:   client.Close,
		server:   server,
		mux:      asynq.NewServeMux(),
		delegate: delegate,
		logger:   logger,
	}
	s.mux.HandleFunc(taskTypeAudit, s.handleTask)
	return s, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (s *QueueSink) StartWorkers() {
	go func() {
		if err := s.server.Run(s.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("asynq server stopped with error")
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (s *QueueSink) Shutdown() error {
	if s.server != nil {
		s.server.Shutdown()
	}
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// Record はイベントをキューに投入します。
func (s *QueueSink) Record(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskTypeAudit, body, asynq.Queue(queueAudit))
	if _, err := s.client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue audit event: %w", err)
	}
	return nil
}

func (s *QueueSink) handleTask(ctx context.Context, task *asynq.Task) error {
	var event Event
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		// 壊れたペイロードは再試行しても直らない
		return fmt.Errorf("decode audit event: %v: %w", err, asynq.SkipRetry)
	}
	if event.Kind == "" {
		return fmt.Errorf("missing kind in payload: %w", asynq.SkipRetry)
	}
	return s.delegate.Record(ctx, event)
}

// asynqLogger は Asynq の内部ログを zerolog に流します。
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
