package store

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/ent0n29/chatrelay/internal/logging"
	"github.com/ent0n29/chatrelay/internal/message"
	"github.com/ent0n29/chatrelay/internal/observability"
)

// ErrRejected is passed to completion callbacks of writes the writer never
// queued, because it was closed or the lane was full.
var ErrRejected = errors.New("write rejected")

// WriterConfig tunes the write-behind queue.
type WriterConfig struct {
	Lanes     int
	QueueSize int
	Timeout   time.Duration
}

type job struct {
	op   string
	key  string
	fn   func(ctx context.Context, s Store) error
	done func(err error)
}

func (j job) finish(err error) {
	if j.done != nil {
		j.done(err)
	}
}

// Writer applies store writes off the event path. Writes sharing a key go to
// the same lane and are applied in submission order; Submit never blocks and
// failed writes are logged, never retried.
type Writer struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
	timeout time.Duration
	lanes   []chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewWriter(s Store, cfg WriterConfig, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	if cfg.Lanes <= 0 {
		cfg.Lanes = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	w := &Writer{
		store:   s,
		logger:  logging.OrDefault(logger),
		metrics: metrics,
		timeout: cfg.Timeout,
		lanes:   make([]chan job, cfg.Lanes),
	}
	for i := range w.lanes {
		w.lanes[i] = make(chan job, cfg.QueueSize)
		w.wg.Add(1)
		go w.run(w.lanes[i])
	}
	return w
}

// Store exposes the underlying store for inline reads.
func (w *Writer) Store() Store {
	return w.store
}

// Timeout is the per-call budget also applied to inline reads.
func (w *Writer) Timeout() time.Duration {
	return w.timeout
}

func (w *Writer) Submit(op, key string, fn func(ctx context.Context, s Store) error) bool {
	return w.submit(job{op: op, key: key, fn: fn})
}

func (w *Writer) submit(j job) bool {
	if w.enqueue(j) {
		return true
	}
	j.finish(ErrRejected)
	return false
}

func (w *Writer) enqueue(j job) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.metrics.ObservePersist(j.op, "closed")
		return false
	}
	select {
	case w.lanes[laneFor(j.key, len(w.lanes))] <- j:
		return true
	default:
		w.metrics.ObservePersist(j.op, "dropped")
		w.logger.Warn("persist queue full, dropping write", "op", j.op, "key", j.key)
		return false
	}
}

// SetPresence queues a presence write. done, if set, runs once with the
// write's outcome.
func (w *Writer) SetPresence(userID string, online bool, lastSeen time.Time, done func(err error)) bool {
	return w.submit(job{
		op:  "set_presence",
		key: "user:" + userID,
		fn: func(ctx context.Context, s Store) error {
			return s.SetPresence(ctx, userID, online, lastSeen)
		},
		done: done,
	})
}

// SetMessageStatus queues one write per lane so each id shares a lane with
// the rest of that message's writes, including RecordMessage.
func (w *Writer) SetMessageStatus(ids []string, status message.Status) bool {
	if len(ids) == 0 {
		return false
	}
	byLane := lo.GroupBy(ids, func(id string) int {
		return laneFor(messageKey(id), len(w.lanes))
	})
	queued := true
	for _, group := range byLane {
		ok := w.Submit("set_message_status", messageKey(group[0]), func(ctx context.Context, s Store) error {
			return s.SetMessageStatus(ctx, group, status)
		})
		queued = queued && ok
	}
	return queued
}

// SetReactions queues a reaction-set write. done, if set, runs once with the
// write's outcome.
func (w *Writer) SetReactions(messageID string, reactions []message.Reaction, done func(err error)) bool {
	reactions = append([]message.Reaction{}, reactions...)
	return w.submit(job{
		op:  "set_reactions",
		key: messageKey(messageID),
		fn: func(ctx context.Context, s Store) error {
			return s.SetReactions(ctx, messageID, reactions)
		},
		done: done,
	})
}

// RecordMessage is a no-op for stores that do not keep message metadata.
func (w *Writer) RecordMessage(m message.Message) bool {
	if _, ok := w.store.(Recorder); !ok {
		return false
	}
	return w.Submit("record_message", messageKey(m.ID), func(ctx context.Context, s Store) error {
		return s.(Recorder).RecordMessage(ctx, m)
	})
}

// Close stops accepting writes and waits for queued ones to finish.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for _, lane := range w.lanes {
		close(lane)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Writer) run(lane <-chan job) {
	defer w.wg.Done()
	for j := range lane {
		w.apply(j)
	}
}

func (w *Writer) apply(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	err := j.fn(ctx, w.store)
	if err != nil {
		w.metrics.ObservePersist(j.op, "error")
		w.logger.Warn("persist failed", "op", j.op, "key", j.key, "err", err)
	} else {
		w.metrics.ObservePersist(j.op, "ok")
	}
	j.finish(err)
}

func messageKey(id string) string {
	return "msg:" + id
}

func laneFor(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
