// =============================================================================
// RagFlow 主入口
// =============================================================================
// 命令行入口点：文档摄取、交互式对话、图谱重建
//
// 使用方法:
//
//	ragflow ingest notes.txt manual.pdf     # 摄取文档
//	ragflow chat                            # 交互式对话
//	ragflow chat --strategy hybrid          # 指定检索策略
//	ragflow graph rebuild                   # 重建知识图谱
//	ragflow version                         # 显示版本信息
// =============================================================================
package main

import (
	"fmt"
	"os"

	"github.com/BaSui01/ragflow/cmd/ragflow/commands"
)

// 构建时注入
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersion(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
