// Package config 提供 RagFlow 的统一配置加载。
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量。
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("RAGFLOW").
//	    Load()
package config
