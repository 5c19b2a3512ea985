package pool

import (
	"sync"

	"github.com/kart-io/logger"
)

// 全局池注册表，按类型索引。
var (
	globalMu    sync.RWMutex
	globalPools map[Type]*Pool
)

// GlobalConfig 全局池配置，按类型覆盖；nil 项使用对应默认配置。
type GlobalConfig struct {
	// DefaultPool 默认池配置
	DefaultPool *Config
	// BackgroundPool 后台任务池配置
	BackgroundPool *Config
}

// InitGlobal 用默认配置初始化全局池，重复调用无效果。
func InitGlobal() error {
	return InitGlobalWithConfig(nil)
}

// InitGlobalWithConfig 用自定义配置初始化全局池。
func InitGlobalWithConfig(config *GlobalConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPools != nil {
		return nil
	}
	if config == nil {
		config = &GlobalConfig{}
	}
	if config.DefaultPool == nil {
		config.DefaultPool = DefaultConfig()
	}
	if config.BackgroundPool == nil {
		config.BackgroundPool = BackgroundConfig()
	}

	pools := make(map[Type]*Pool, 2)
	for typ, cfg := range map[Type]*Config{
		DefaultPool:    config.DefaultPool,
		BackgroundPool: config.BackgroundPool,
	} {
		p, err := NewPool(typ, cfg)
		if err != nil {
			for _, created := range pools {
				created.Release()
			}
			return err
		}
		pools[typ] = p
	}

	globalPools = pools
	logger.Infow("全局工作池初始化完成", "pools", len(pools))
	return nil
}

// Get 返回指定类型的全局池。
func Get(typ Type) (*Pool, error) {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalPools == nil {
		return nil, ErrNotInitialized
	}
	p, ok := globalPools[typ]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

// SubmitToType 提交任务到指定类型的全局池。
func SubmitToType(typ Type, task func()) error {
	p, err := Get(typ)
	if err != nil {
		return err
	}
	return p.Submit(task)
}

// Submit 提交任务到默认全局池。
func Submit(task func()) error {
	return SubmitToType(DefaultPool, task)
}

// CloseGlobal 释放全部全局池。
func CloseGlobal() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	for _, p := range globalPools {
		p.Release()
	}
	globalPools = nil
	return nil
}
