package chatlog

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docdoc/docdoc-server/internal/logger"
)

// WriterConfig tunes the transcript writer.
type WriterConfig struct {
	Workers    int
	BufferSize int
	Timeout    time.Duration
}

// Writer persists transcript messages off the caller's goroutine.
//
// Messages of one session always land on the same worker, so they are stored
// in the order Append was called. Failed writes are logged and counted but
// never retried.
type Writer struct {
	store    Store
	logger   *logger.Logger
	shards   []chan appendJob
	timeout  time.Duration
	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool

	failures atomic.Int64
	dropped  atomic.Int64
}

type appendJob struct {
	sessionID string
	message   Message
	title     string
}

func NewWriter(store Store, logger *logger.Logger, cfg WriterConfig) *Writer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	w := &Writer{
		store:    store,
		logger:   logger,
		shards:   make([]chan appendJob, cfg.Workers),
		timeout:  cfg.Timeout,
		shutdown: make(chan struct{}),
	}

	for i := range w.shards {
		w.shards[i] = make(chan appendJob, cfg.BufferSize)
		w.wg.Add(1)
		go w.worker(w.shards[i])
	}

	return w
}

// Append queues msg for sessionID. title, when non-empty, becomes the session
// title if msg is the first message of the session. Returns false when the
// message was not queued.
func (w *Writer) Append(sessionID string, msg Message, title string) bool {
	if sessionID == "" {
		return false
	}

	if w.closed.Load() {
		w.logger.Warn("transcript writer is shutting down, dropping message",
			slog.String("chat_id", sessionID))
		w.dropped.Add(1)
		return false
	}

	select {
	case w.shards[w.shardFor(sessionID)] <- appendJob{sessionID: sessionID, message: msg, title: title}:
		return true
	default:
		dropped := w.dropped.Add(1)
		w.logger.Error("transcript queue full, message dropped",
			slog.String("chat_id", sessionID),
			slog.String("sender", msg.Sender.String()),
			slog.Int64("total_dropped", dropped))
		return false
	}
}

// Failures is the number of writes the store rejected.
func (w *Writer) Failures() int64 { return w.failures.Load() }

// Dropped is the number of messages never handed to the store.
func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Shutdown stops accepting messages and waits for queued ones to be written.
func (w *Writer) Shutdown() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	close(w.shutdown)
	w.wg.Wait()
}

func (w *Writer) shardFor(sessionID string) int {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(w.shards)))
}

func (w *Writer) worker(jobs chan appendJob) {
	defer w.wg.Done()

	for {
		select {
		case job := <-jobs:
			w.write(job)
		case <-w.shutdown:
			for {
				select {
				case job := <-jobs:
					w.write(job)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(job appendJob) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.store.AppendMessage(ctx, job.sessionID, job.message, job.title); err != nil {
		failures := w.failures.Add(1)
		w.logger.Error("failed to persist chat message",
			slog.String("chat_id", job.sessionID),
			slog.String("sender", job.message.Sender.String()),
			slog.Int64("total_failures", failures),
			slog.String("error", err.Error()))
	}
}
