// Package rag 实现 RagFlow 的检索核心：文档分块、向量索引、
// 知识图谱构建与遍历，以及三种检索策略的编排与融合。
//
// 包内所有计算都是同步且确定的；非确定性的外部能力（嵌入、关系抽取、
// 网络搜索）通过 llm 包的接口注入。向量索引与图谱快照按不可变值发布，
// 并发读取永远不会观察到半构建状态。
package rag
