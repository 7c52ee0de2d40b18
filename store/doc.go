// Package store 提供文档、分块与向量记录的持久化层。
//
// 基于 GORM + 纯 Go sqlite 驱动，向量以 JSON 编码存储。
// 向量检索本身在内存索引（rag.VectorIndex）里进行，本包只负责
// 让进程重启后能重建索引：加载全部 ready 文档的分块与向量。
package store
