// Package engine 把检索、记忆、护栏与生成能力装配成完整的
// 对话与摄取流水线。
//
// 调度模型：请求并行、会话串行。每个会话持有一把键控互斥锁，
// 同一会话内的轮次严格按护栏放行输入的顺序落入历史；不同会话
// 的轮次完全并行。向量索引与知识图谱按文档共享，会话记忆严格
// 按会话隔离。
//
// 每轮流程：输入护栏 → 检索编排 → 记忆窗口 → 提示词装配 →
// 生成（有界重试）→ 输出护栏 → 原子追加记忆。护栏 block 终止
// 本轮且不触碰记忆；生成开始后不再支持取消，半截的助手消息
// 会破坏记忆的原子性。
package engine
