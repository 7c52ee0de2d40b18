// Package tokenizer 提供统一的 token 计数与编码能力。
//
// 检索预算、记忆窗口与分块全部以 token 为单位，因此整个引擎共享同一个
// Tokenizer 接口：OpenAI 系模型走 tiktoken 精确计数，其余模型回退到
// 基于字符的估算器。
package tokenizer
