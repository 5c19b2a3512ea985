// Package pool 基于 ants 提供有统计与全局注册表的工作池。
package pool

import "errors"

var (
	// ErrPoolClosed 池已关闭
	ErrPoolClosed = errors.New("池已关闭")
	// ErrPoolNotFound 池不存在
	ErrPoolNotFound = errors.New("池不存在")
	// ErrPoolOverload 池已满
	ErrPoolOverload = errors.New("池已满")
	// ErrNotInitialized 全局池未初始化
	ErrNotInitialized = errors.New("全局工作池未初始化")
)
