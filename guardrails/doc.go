// Package guardrails 提供输入/输出两侧的策略规则引擎。
//
// 每条规则有稳定的字符串 ID，引擎按 ID 升序确定性求值：
// 第一条 block 规则短路并带出拒绝原因；rewrite 规则串联，
// 后一条收到前一条改写后的文本；无规则命中则 allow 原文。
//
// 规则本身是纯函数式的模式匹配（正则与关键词），不调用外部
// 能力，因此对相同的 (文本, 规则集) 永远给出相同的裁决。
package guardrails
