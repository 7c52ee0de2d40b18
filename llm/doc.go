// Package llm 定义引擎消费的外部能力边界：文本生成、向量嵌入、
// 关系抽取与可选的网络搜索。
//
// 引擎核心只依赖本包的接口；具体供应商绑定（OpenAI 参考实现）与
// 限流、重试包装都在边界内完成，检索与编排逻辑保持确定性、可测试。
package llm
