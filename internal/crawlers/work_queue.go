package crawlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
)

// WorkQueue 批量抓取任务队列
// 同一轮内同一个URL只入队一次
type WorkQueue struct {
	jobs chan models.ScrapeJob

	mu     sync.Mutex
	queued map[string]int // URL → 入队时的轮次
	closed bool
}

// NewWorkQueue 创建容量为capacity的队列
func NewWorkQueue(capacity int) *WorkQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &WorkQueue{
		jobs:   make(chan models.ScrapeJob, capacity),
		queued: make(map[string]int),
	}
}

// Push 入队, 队列满时阻塞直到ctx取消
func (q *WorkQueue) Push(ctx context.Context, job models.ScrapeJob) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("队列已关闭")
	}
	if pass, ok := q.queued[job.URL]; ok && pass == job.Pass {
		q.mu.Unlock()
		return fmt.Errorf("URL已在队列中: %s", job.URL)
	}
	q.queued[job.URL] = job.Pass
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs 供worker读取的channel, Close之后读完即结束
func (q *WorkQueue) Jobs() <-chan models.ScrapeJob {
	return q.jobs
}

// Pop 取出下一个任务
func (q *WorkQueue) Pop(ctx context.Context) (models.ScrapeJob, bool) {
	select {
	case <-ctx.Done():
		return models.ScrapeJob{}, false
	case job, ok := <-q.jobs:
		return job, ok
	}
}

// PendingCount 待处理数量
func (q *WorkQueue) PendingCount() int {
	return len(q.jobs)
}

// Close 关闭队列, 之后Push返回错误
func (q *WorkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.jobs)
		q.closed = true
	}
}
