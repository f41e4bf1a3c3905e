package loader

import (
	"context"
	"sync"

	irodsfs_common_utils "github.com/cyverse/irodsfs-common/utils"
	log "github.com/sirupsen/logrus"
)

// WriteJob is a deferred storage write
type WriteJob struct {
	Key string
	Run func(ctx context.Context) error
}

// WriteQueue runs write jobs one at a time on a single goroutine.
// Failures are logged and counted, never returned to the caller that enqueued the job.
type WriteQueue struct {
	jobs    chan WriteJob
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	metrics *Metrics

	pending int
	closed  bool
	mutex   sync.Mutex
	idle    *sync.Cond
}

// NewWriteQueue creates a WriteQueue and starts its worker, length is the number of jobs that can wait
func NewWriteQueue(length int, metrics *Metrics) *WriteQueue {
	if length <= 0 {
		length = 1
	}

	if metrics == nil {
		metrics = newMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())

	queue := &WriteQueue{
		jobs:    make(chan WriteJob, length),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		metrics: metrics,
	}
	queue.idle = sync.NewCond(&queue.mutex)

	go queue.run()

	return queue
}

// Enqueue adds a job, returns false if the queue is full or released
func (queue *WriteQueue) Enqueue(job WriteJob) bool {
	logger := log.WithFields(log.Fields{
		"package":  "loader",
		"struct":   "WriteQueue",
		"function": "Enqueue",
	})

	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	if queue.closed {
		return false
	}

	select {
	case queue.jobs <- job:
		queue.pending++
		return true
	default:
		logger.Warnf("write queue is full, dropping write of %q", job.Key)
		queue.metrics.IncreaseCounterForStorageWriteFailures(1)
		return false
	}
}

// GetPending returns the number of jobs queued or running
func (queue *WriteQueue) GetPending() int {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	return queue.pending
}

// Wait blocks until all enqueued jobs have finished
func (queue *WriteQueue) Wait() {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	for queue.pending > 0 {
		queue.idle.Wait()
	}
}

// Release runs the jobs already queued and stops the worker
func (queue *WriteQueue) Release() {
	queue.mutex.Lock()
	if queue.closed {
		queue.mutex.Unlock()
		<-queue.done
		return
	}

	queue.closed = true
	close(queue.jobs)
	queue.mutex.Unlock()

	<-queue.done
	queue.cancel()
}

func (queue *WriteQueue) run() {
	logger := log.WithFields(log.Fields{
		"package":  "loader",
		"struct":   "WriteQueue",
		"function": "run",
	})

	defer irodsfs_common_utils.StackTraceFromPanic(logger)
	defer close(queue.done)

	for job := range queue.jobs {
		queue.runJob(job)

		queue.mutex.Lock()
		queue.pending--
		if queue.pending == 0 {
			queue.idle.Broadcast()
		}
		queue.mutex.Unlock()
	}
}

func (queue *WriteQueue) runJob(job WriteJob) {
	logger := log.WithFields(log.Fields{
		"package":  "loader",
		"struct":   "WriteQueue",
		"function": "runJob",
	})

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("write job for %q panicked: %v", job.Key, r)
			queue.metrics.IncreaseCounterForStorageWriteFailures(1)
		}
	}()

	err := job.Run(queue.ctx)
	if err != nil {
		logger.WithError(err).Errorf("failed to write %q to storage cache", job.Key)
		queue.metrics.IncreaseCounterForStorageWriteFailures(1)
		return
	}

	queue.metrics.IncreaseCounterForStorageWrites(1)
}
