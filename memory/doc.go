// Package memory 实现按会话隔离的对话记忆：有序轮次历史、
// token 预算窗口、懒惰的空闲过期与低频兜底清扫。
//
// 并发模型：同一会话内轮次严格串行（由 engine 的按会话锁保证），
// 不同会话完全并行，绝不经过全局锁串行化。历史存储后端可插拔：
// 内存后端用于开发与测试，Redis 后端用于多实例部署。
package memory
