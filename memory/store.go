package memory

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/ragflow/types"
)

// 存储层通用错误。
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrStoreClosed     = errors.New("memory store is closed")
)

// Store 是会话历史的持久化后端。
// 实现只负责有序存取，窗口、过期与原子轮次追加由 Manager 负责。
type Store interface {
	// Append 把若干消息按序追加到会话历史尾部。
	Append(ctx context.Context, sessionID string, msgs ...types.Message) error

	// History 返回会话的完整有序历史；会话不存在时返回空切片。
	History(ctx context.Context, sessionID string) ([]types.Message, error)

	// Delete 删除会话历史。
	Delete(ctx context.Context, sessionID string) error

	// Sessions 返回当前有历史的会话 ID 列表。
	Sessions(ctx context.Context) ([]string, error)

	// Close 释放后端资源。
	Close() error
}

// Session 是一个会话的可变状态：活动文档范围、策略选择与预算。
// 字段只能在持有 engine 按会话锁的轮次内修改。
type Session struct {
	ID string `json:"id"`
	// Scope 活动文档范围；空表示会话可见的全部文档。
	Scope []string `json:"scope,omitempty"`
	// Strategy 当前检索策略。
	Strategy types.Strategy `json:"strategy"`
	// WebSearch 是否启用网络搜索证据源。
	WebSearch bool `json:"web_search"`
	// TokenBudget 记忆窗口预算。
	TokenBudget int `json:"token_budget"`
	// CreatedAt / LastAccess 生命周期时间戳。
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
}
