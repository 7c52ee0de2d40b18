package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/guardrails"
	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/llm/tokenizer"
	"github.com/BaSui01/ragflow/rag"
	"github.com/BaSui01/ragflow/types"
)

// TurnRequest 一轮对话的输入。可选字段覆盖会话状态，仅对本轮生效。
type TurnRequest struct {
	SessionID string
	Query     string

	// Strategy / Scope / WebSearch 为 nil（或空）时沿用会话状态。
	Strategy  *types.Strategy
	Scope     []string
	WebSearch *bool
}

// TurnResult 一轮对话的产出，供上层 UI/传输层消费。
type TurnResult struct {
	SessionID string `json:"session_id"`
	// Message 助手消息，Citations 为实际被引用的证据。
	Message types.Message `json:"message"`

	// Requested / Strategy 请求的与实际使用的检索策略。
	Requested types.Strategy `json:"requested"`
	Strategy  types.Strategy `json:"strategy"`
	// Degraded 表示本轮降级到了 basic。
	Degraded       bool   `json:"degraded"`
	DegradedReason string `json:"degraded_reason,omitempty"`

	// Blocked 表示护栏终止了本轮；RejectionReason 面向用户。
	Blocked         bool   `json:"blocked"`
	RejectionReason string `json:"rejection_reason,omitempty"`

	// InputVerdict / OutputVerdict 两侧护栏裁决。
	InputVerdict  *guardrails.Verdict `json:"input_verdict,omitempty"`
	OutputVerdict *guardrails.Verdict `json:"output_verdict,omitempty"`

	// Warnings 非终止性提示（范围内无就绪文档、主题不相关等）。
	Warnings []string `json:"warnings,omitempty"`

	TokensUsed int `json:"tokens_used"`
}

// Turn 处理一轮对话。同会话的并发调用按获得会话锁的顺序串行化；
// 历史只在整轮成功后原子追加。护栏 block 不是错误：返回的结果
// 带 Blocked 与拒绝原因，记忆不变。
func (e *Engine) Turn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := time.Now()

	unlock := e.sessionLocks.Lock(req.SessionID)
	defer unlock()

	sess, err := e.memory.Session(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	strategy := sess.Strategy
	if req.Strategy != nil {
		strategy = *req.Strategy
	}
	scope := sess.Scope
	if req.Scope != nil {
		scope = req.Scope
	}
	webSearch := sess.WebSearch
	if req.WebSearch != nil {
		webSearch = *req.WebSearch
	}

	result := &TurnResult{
		SessionID: req.SessionID,
		Requested: strategy,
		Strategy:  strategy,
	}

	// 输入护栏。
	inVerdict := e.guardrails.Check(ctx, guardrails.Input{
		Text:      req.Query,
		Direction: guardrails.DirectionInput,
	})
	result.InputVerdict = inVerdict
	result.Warnings = append(result.Warnings, inVerdict.Warnings...)
	e.recordVerdict(guardrails.DirectionInput, inVerdict)

	if inVerdict.Blocked() {
		result.Blocked = true
		result.RejectionReason = inVerdict.Reason
		e.logger.Info("turn blocked on input",
			zap.String("session_id", req.SessionID),
			zap.Strings("rule_ids", inVerdict.RuleIDs))
		e.recordTurn(strategy, "blocked", start)
		return result, nil
	}
	query := inVerdict.Text

	// 检索。
	retrievalStart := time.Now()
	retrieval, err := e.orchestrator.Retrieve(ctx, query, strategy, scope, sess.TokenBudget,
		rag.WithWebSearch(webSearch))
	if err != nil {
		e.recordTurn(strategy, "failed", start)
		return nil, err
	}
	result.Strategy = retrieval.Strategy
	result.Degraded = retrieval.Degraded
	result.DegradedReason = retrieval.DegradedReason
	if retrieval.ScopeWarning {
		result.Warnings = append(result.Warnings, "no ready document in the active scope")
	}
	if e.metrics != nil {
		e.metrics.RecordRetrieval(string(retrieval.Strategy), len(retrieval.Items),
			retrieval.Degraded, string(retrieval.Requested), time.Since(retrievalStart))
	}

	// 记忆窗口与提示词。
	window, err := e.memory.Window(ctx, req.SessionID, sess.TokenBudget)
	if err != nil {
		e.recordTurn(strategy, "failed", start)
		return nil, err
	}
	prompt := e.composer.Compose(window, retrieval.Items, query)

	// 生成，有界重试后失败则以稳定错误码上浮。
	raw, tokensUsed, err := e.generate(ctx, prompt)
	if err != nil {
		e.recordTurn(strategy, "failed", start)
		return nil, err
	}
	result.TokensUsed = tokensUsed

	// 输出护栏：block 丢弃生成结果，rewrite 采用改写文本。
	outVerdict := e.guardrails.Check(ctx, guardrails.Input{
		Text:      raw,
		Direction: guardrails.DirectionOutput,
		Evidence:  retrieval.Items,
	})
	result.OutputVerdict = outVerdict
	e.recordVerdict(guardrails.DirectionOutput, outVerdict)

	if outVerdict.Blocked() {
		result.Blocked = true
		result.RejectionReason = outVerdict.Reason
		e.logger.Info("turn blocked on output",
			zap.String("session_id", req.SessionID),
			zap.Strings("rule_ids", outVerdict.RuleIDs))
		e.recordTurn(strategy, "blocked", start)
		return result, nil
	}
	answer := outVerdict.Text

	citations := e.composer.ExtractCitations(answer, retrieval.Items)
	now := time.Now()
	userMsg := types.Message{
		ID:         uuid.NewString(),
		Role:       types.RoleUser,
		Text:       query,
		TokenCount: tokenizer.MustCount(e.tokenizer, query),
		Timestamp:  now,
	}
	assistantMsg := types.Message{
		ID:         uuid.NewString(),
		Role:       types.RoleAssistant,
		Text:       answer,
		TokenCount: tokenizer.MustCount(e.tokenizer, answer),
		Timestamp:  now,
		Citations:  citations,
	}

	// 原子追加：要么整轮入历史，要么不留痕迹。
	if err := e.memory.AppendTurn(ctx, req.SessionID, userMsg, assistantMsg); err != nil {
		e.recordTurn(strategy, "failed", start)
		return nil, err
	}

	result.Message = assistantMsg
	e.recordTurn(retrieval.Strategy, "ok", start)
	if e.metrics != nil {
		e.metrics.SetActiveSessions(e.memory.ActiveSessions())
	}
	return result, nil
}

// generate 调用生成能力，重试耗尽后映射为 GenerationUnavailable。
func (e *Engine) generate(ctx context.Context, prompt string) (string, int, error) {
	var resp *llm.GenerateResponse
	err := e.retryer.Do(ctx, func() error {
		var genErr error
		resp, genErr = e.provider.Generate(ctx, llm.GenerateRequest{
			Prompt:      prompt,
			Model:       e.cfg.LLM.Model,
			Temperature: e.cfg.LLM.Temperature,
			MaxTokens:   e.cfg.LLM.MaxCompletionTokens,
		})
		if e.metrics != nil {
			status := "ok"
			if genErr != nil {
				status = "error"
			}
			e.metrics.RecordCapability("generate", status)
		}
		return genErr
	})
	if err != nil {
		return "", 0, types.NewError(types.ErrCodeGenerationUnavailable,
			"generation failed after retries", err)
	}
	if e.metrics != nil {
		e.metrics.RecordTokens(tokenizer.MustCount(e.tokenizer, prompt), resp.TokensUsed)
	}
	return resp.Text, resp.TokensUsed, nil
}

func (e *Engine) recordVerdict(direction guardrails.Direction, v *guardrails.Verdict) {
	if e.metrics != nil {
		e.metrics.RecordGuardrailVerdict(string(direction), string(v.Decision))
	}
}

func (e *Engine) recordTurn(strategy types.Strategy, status string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordTurn(string(strategy), status, time.Since(start))
	}
}
