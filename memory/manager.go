package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/llm/tokenizer"
	"github.com/BaSui01/ragflow/types"
)

// Config 会话记忆配置。
type Config struct {
	// TokenBudget 窗口默认预算。
	TokenBudget int `json:"token_budget"`
	// IdleExpiry 会话空闲多久后过期；过期检查是懒惰的，
	// 在下一次访问时进行。
	IdleExpiry time.Duration `json:"idle_expiry"`
	// SweepInterval 兜底清扫间隔，回收过期但再未被访问的会话。
	SweepInterval time.Duration `json:"sweep_interval"`
	// DefaultStrategy 新会话的初始检索策略。
	DefaultStrategy types.Strategy `json:"default_strategy"`
	// DefaultWebSearch 新会话的网络搜索开关初值。
	DefaultWebSearch bool `json:"default_web_search"`
}

// DefaultConfig 返回默认记忆配置。
func DefaultConfig() Config {
	return Config{
		TokenBudget:     2048,
		IdleExpiry:      30 * time.Minute,
		SweepInterval:   5 * time.Minute,
		DefaultStrategy: types.StrategyBasic,
	}
}

// Manager 管理全部会话的元数据与历史。
//
// 过期模型：懒惰检查优先（访问时发现过期即重置），
// 低频清扫兜底（过期但未被访问的会话占用的内存有界）。
type Manager struct {
	store     Store
	tokenizer tokenizer.Tokenizer
	config    Config
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewManager 创建记忆管理器。
func NewManager(store Store, tok tokenizer.Tokenizer, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TokenBudget <= 0 {
		config.TokenBudget = DefaultConfig().TokenBudget
	}
	if config.IdleExpiry <= 0 {
		config.IdleExpiry = DefaultConfig().IdleExpiry
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultConfig().SweepInterval
	}
	if !config.DefaultStrategy.Valid() {
		config.DefaultStrategy = types.StrategyBasic
	}
	return &Manager{
		store:     store,
		tokenizer: tok,
		config:    config,
		logger:    logger.With(zap.String("component", "conversation_memory")),
		sessions:  make(map[string]*Session),
		now:       time.Now,
		stopSweep: make(chan struct{}),
	}
}

// Session 返回会话状态；不存在或已过期时创建新会话。
// 访问会刷新 LastAccess（懒惰过期检查点）。
func (m *Manager) Session(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	now := m.now()

	if ok && now.Sub(s.LastAccess) > m.config.IdleExpiry {
		// 过期会话：历史与状态一并重置。
		delete(m.sessions, sessionID)
		m.mu.Unlock()
		if err := m.store.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
		m.logger.Info("expired session reaped lazily", zap.String("session_id", sessionID))
		m.mu.Lock()
		ok = false
	}

	if !ok {
		s = &Session{
			ID:          sessionID,
			Strategy:    m.config.DefaultStrategy,
			WebSearch:   m.config.DefaultWebSearch,
			TokenBudget: m.config.TokenBudget,
			CreatedAt:   now,
			LastAccess:  now,
		}
		m.sessions[sessionID] = s
	} else {
		s.LastAccess = now
	}

	// 返回副本，字段修改必须经 Update 回写。
	copied := *s
	copied.Scope = append([]string(nil), s.Scope...)
	m.mu.Unlock()
	return &copied, nil
}

// ActiveSessions 返回当前未过期的会话数量。
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Update 在管理器锁内修改会话状态。
func (m *Manager) Update(sessionID string, fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		fn(s)
		s.LastAccess = m.now()
	}
}

// AppendTurn 原子地追加一轮完整对话（用户输入 + 助手输出）。
// 失败的轮次不会留下半截历史。
func (m *Manager) AppendTurn(ctx context.Context, sessionID string, user, assistant types.Message) error {
	if user.TokenCount <= 0 {
		user.TokenCount = tokenizer.MustCount(m.tokenizer, user.Text)
	}
	if assistant.TokenCount <= 0 {
		assistant.TokenCount = tokenizer.MustCount(m.tokenizer, assistant.Text)
	}
	if err := m.store.Append(ctx, sessionID, user, assistant); err != nil {
		return err
	}
	m.Update(sessionID, func(*Session) {})
	return nil
}

// History 返回会话完整历史。
func (m *Manager) History(ctx context.Context, sessionID string) ([]types.Message, error) {
	return m.store.History(ctx, sessionID)
}

// Window 返回 token 预算内的记忆窗口：从最旧的消息开始丢弃，
// 保留最近的轮次。最近一条用户消息永远保留，即使它独自超出预算。
func (m *Manager) Window(ctx context.Context, sessionID string, budget int) ([]types.Message, error) {
	if budget <= 0 {
		budget = m.config.TokenBudget
	}
	history, err := m.store.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return WindowMessages(history, budget, m.tokenizer), nil
}

// WindowMessages 对一段历史做预算窗口，新消息优先保留。
func WindowMessages(history []types.Message, budget int, tok tokenizer.Tokenizer) []types.Message {
	if len(history) == 0 {
		return nil
	}

	count := func(msg types.Message) int {
		if msg.TokenCount > 0 {
			return msg.TokenCount
		}
		return tokenizer.MustCount(tok, msg.Text)
	}

	// 找到最近一条用户消息，它无条件保留。
	lastUser := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == types.RoleUser {
			lastUser = i
			break
		}
	}

	total := 0
	keepFrom := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		c := count(history[i])
		if total+c > budget {
			if i == lastUser && keepFrom > lastUser {
				// 预算已满但最近的用户消息还没进窗口：
				// 窗口收缩为只含该消息之后的内容。
				keepFrom = lastUser
				break
			}
			break
		}
		total += c
		keepFrom = i
	}

	if lastUser >= 0 && keepFrom > lastUser {
		keepFrom = lastUser
	}

	out := make([]types.Message, len(history[keepFrom:]))
	copy(out, history[keepFrom:])
	return out
}

// Reset 清空一个会话的历史与状态。
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return m.store.Delete(ctx, sessionID)
}

// StartSweeper 启动低频兜底清扫，直到 ctx 取消或 Close。
func (m *Manager) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.config.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopSweep:
				return
			case <-ticker.C:
				m.sweep(ctx)
			}
		}
	}()
}

// sweep 回收过期但未被访问的会话。
func (m *Manager) sweep(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if now.Sub(s.LastAccess) > m.config.IdleExpiry {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		if err := m.store.Delete(ctx, id); err != nil {
			m.logger.Warn("sweep failed to delete session history",
				zap.String("session_id", id),
				zap.Error(err))
		}
	}
	if len(expired) > 0 {
		m.logger.Info("swept expired sessions", zap.Int("count", len(expired)))
	}
}

// Close 停止清扫并关闭存储。
func (m *Manager) Close() error {
	m.sweepOnce.Do(func() { close(m.stopSweep) })
	return m.store.Close()
}
