package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/ragflow/llm/tokenizer"
	"github.com/BaSui01/ragflow/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(NewInMemoryStore(nil), tokenizer.NewEstimatorTokenizer("test", 0), Config{
		TokenBudget:   64,
		IdleExpiry:    30 * time.Minute,
		SweepInterval: time.Minute,
	}, nil)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManagerSessionGetOrCreate(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	s, err := m.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, types.StrategyBasic, s.Strategy)
	assert.Equal(t, 64, s.TokenBudget)

	m.Update("s1", func(s *Session) {
		s.Strategy = types.StrategyHybrid
		s.Scope = []string{"doc-1"}
	})

	again, err := m.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StrategyHybrid, again.Strategy)
	assert.Equal(t, []string{"doc-1"}, again.Scope)
}

func TestManagerSessionCopyIsDetached(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	s, err := m.Session(ctx, "s1")
	require.NoError(t, err)
	s.Strategy = types.StrategyKnowledgeGraph
	s.Scope = append(s.Scope, "doc-x")

	again, err := m.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StrategyBasic, again.Strategy)
	assert.Empty(t, again.Scope)
}

func TestManagerAppendTurnCountsTokens(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	user := msg(types.RoleUser, "what is the capital of france", 0)
	assistant := msg(types.RoleAssistant, "the capital of france is paris", 0)
	require.NoError(t, m.AppendTurn(ctx, "s1", user, assistant))

	history, err := m.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Positive(t, history[0].TokenCount)
	assert.Positive(t, history[1].TokenCount)
}

func TestManagerLazyExpiryResetsSession(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	_, err := m.Session(ctx, "s1")
	require.NoError(t, err)
	m.Update("s1", func(s *Session) { s.Strategy = types.StrategyHybrid })
	require.NoError(t, m.AppendTurn(ctx, "s1",
		msg(types.RoleUser, "hello", 2), msg(types.RoleAssistant, "hi", 1)))

	// 空闲超过过期阈值后的首次访问应得到全新会话。
	current = current.Add(31 * time.Minute)

	fresh, err := m.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StrategyBasic, fresh.Strategy)

	history, err := m.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history, "expired session history must be discarded")
}

func TestManagerAccessKeepsSessionAlive(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	_, err := m.Session(ctx, "s1")
	require.NoError(t, err)
	m.Update("s1", func(s *Session) { s.WebSearch = true })

	// 每次访问都在过期阈值内，状态应一直保留。
	for i := 0; i < 3; i++ {
		current = current.Add(20 * time.Minute)
		s, err := m.Session(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, s.WebSearch)
	}
}

func TestManagerSweepReapsIdleSessions(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	_, err := m.Session(ctx, "idle")
	require.NoError(t, err)
	require.NoError(t, m.AppendTurn(ctx, "idle",
		msg(types.RoleUser, "q", 1), msg(types.RoleAssistant, "a", 1)))

	current = current.Add(time.Hour)
	m.sweep(ctx)

	history, err := m.History(ctx, "idle")
	require.NoError(t, err)
	assert.Empty(t, history)

	m.mu.Lock()
	_, tracked := m.sessions["idle"]
	m.mu.Unlock()
	assert.False(t, tracked)
}

func TestWindowKeepsNewestTurns(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.AppendTurn(ctx, "s1",
			msg(types.RoleUser, fmt.Sprintf("question %d", i), 10),
			msg(types.RoleAssistant, fmt.Sprintf("answer %d", i), 10)))
	}

	// 预算 35 只放得下最近一轮半：窗口从某条消息起连续到末尾。
	window, err := m.Window(ctx, "s1", 35)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, "answer 3", window[0].Text)
	assert.Equal(t, "question 4", window[1].Text)
	assert.Equal(t, "answer 4", window[2].Text)
}

func TestWindowAlwaysIncludesLatestUserMessage(t *testing.T) {
	t.Parallel()

	tok := tokenizer.NewEstimatorTokenizer("test", 0)
	history := []types.Message{
		msg(types.RoleUser, "old question", 5),
		msg(types.RoleAssistant, "old answer", 5),
		msg(types.RoleUser, "huge current question", 100),
	}

	window := WindowMessages(history, 10, tok)
	require.Len(t, window, 1)
	assert.Equal(t, "huge current question", window[0].Text)
}

func TestWindowBudgetProperty(t *testing.T) {
	t.Parallel()

	tok := tokenizer.NewEstimatorTokenizer("test", 0)
	rapid.Check(t, func(t *rapid.T) {
		turns := rapid.IntRange(1, 12).Draw(t, "turns")
		budget := rapid.IntRange(1, 200).Draw(t, "budget")

		var history []types.Message
		for i := 0; i < turns; i++ {
			history = append(history,
				msg(types.RoleUser, fmt.Sprintf("q%d", i), rapid.IntRange(1, 40).Draw(t, fmt.Sprintf("uq%d", i))),
				msg(types.RoleAssistant, fmt.Sprintf("a%d", i), rapid.IntRange(1, 40).Draw(t, fmt.Sprintf("ua%d", i))))
		}

		window := WindowMessages(history, budget, tok)

		// 窗口是历史的连续后缀。
		if len(window) > 0 {
			offset := len(history) - len(window)
			for i, m := range window {
				if m.ID != history[offset+i].ID {
					t.Fatalf("window is not a suffix of history")
				}
			}
		}

		// 最近一条用户消息必须在窗口内。
		lastUser := history[len(history)-2]
		found := false
		total := 0
		for _, m := range window {
			total += m.TokenCount
			if m.ID == lastUser.ID {
				found = true
			}
		}
		if !found {
			t.Fatalf("latest user message dropped from window")
		}

		// 除最近用户消息被强制保留的保底情况外，总量不超预算。
		if total > budget && window[0].ID != lastUser.ID {
			t.Fatalf("window total %d exceeds budget %d", total, budget)
		}
	})
}
