package pool

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// Type 标识一个预定义的工作池。
type Type string

const (
	// DefaultPool 默认通用池
	DefaultPool Type = "default"
	// BackgroundPool 后台任务池，承载问答历史落盘等非关键路径任务
	BackgroundPool Type = "background"
)

// Config 工作池配置。
type Config struct {
	// Capacity 最大并发 goroutine 数
	Capacity int
	// ExpiryDuration 空闲 goroutine 过期时间
	ExpiryDuration time.Duration
	// Nonblocking 池满时提交立即失败而不是排队
	Nonblocking bool
	// MaxBlockingTasks Nonblocking=false 时的最大排队任务数，0 不限
	MaxBlockingTasks int
}

// DefaultConfig 返回默认池配置。
func DefaultConfig() *Config {
	return &Config{
		Capacity:       256,
		ExpiryDuration: 10 * time.Second,
	}
}

// BackgroundConfig 返回后台任务池配置。
// 后台任务允许丢弃，池满时直接拒绝而不是阻塞请求路径。
func BackgroundConfig() *Config {
	return &Config{
		Capacity:         32,
		ExpiryDuration:   60 * time.Second,
		Nonblocking:      true,
		MaxBlockingTasks: 0,
	}
}

// Pool 在 ants 池之上附加类型标识与任务计数。
type Pool struct {
	typ    Type
	inner  *ants.Pool
	closed atomic.Bool

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
}

// Stats 池计数快照。
type Stats struct {
	Submitted int64
	Completed int64
	Rejected  int64
	Panics    int64
}

// NewPool 按配置创建工作池，config 为 nil 时使用默认配置。
func NewPool(typ Type, config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Pool{typ: typ}
	inner, err := ants.NewPool(config.Capacity,
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
		ants.WithPanicHandler(func(r interface{}) {
			p.panics.Add(1)
			logger.Errorw("Worker panic recovered", "pool", typ, "panic", r)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 ants 池失败: %w", err)
	}
	p.inner = inner

	logger.Infow("Worker pool created", "pool", typ, "capacity", config.Capacity)
	return p, nil
}

// Type 返回池类型。
func (p *Pool) Type() Type { return p.typ }

// Running 返回正在运行的 goroutine 数量。
func (p *Pool) Running() int { return p.inner.Running() }

// Submit 提交任务到池中执行。
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	err := p.inner.Submit(func() {
		defer p.completed.Add(1)
		task()
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			p.rejected.Add(1)
			return ErrPoolOverload
		}
		return err
	}
	return nil
}

// Stats 返回任务计数快照。
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panics:    p.panics.Load(),
	}
}

// Release 关闭池并释放资源。
func (p *Pool) Release() {
	if p.closed.Swap(true) {
		return
	}
	p.inner.Release()
	logger.Infow("Worker pool released", "pool", p.typ)
}

// ReleaseTimeout 等待在途任务完成后关闭池，超时返回错误。
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.inner.ReleaseTimeout(timeout)
}
