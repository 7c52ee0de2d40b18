package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/BaSui01/ragflow"
	"github.com/BaSui01/ragflow/engine"
)

var (
	cfgPath string
	model   string
	noStore bool
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersion 注入构建信息，供 version 命令使用。
func SetVersion(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragflow",
		Short: "Retrieval-augmented conversation over your own documents",
		Long: `RagFlow ingests documents, indexes them for vector and
knowledge-graph retrieval, and answers questions grounded in the
indexed evidence with citations.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to configuration file (YAML)")
	root.PersistentFlags().StringVar(&model, "model", "", "Completion model override")
	root.PersistentFlags().BoolVar(&noStore, "no-store", false, "Disable the sqlite document store")

	root.AddCommand(newIngestCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newGraphCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute 运行根命令。
func Execute() error {
	return newRootCmd().Execute()
}

// buildEngine 按全局标志装配引擎。API key 取自 .env 或环境变量。
func buildEngine() (*engine.Engine, error) {
	_ = godotenv.Load()

	opts := []ragflow.Option{}
	if cfgPath != "" {
		opts = append(opts, ragflow.WithConfigFile(cfgPath))
	}
	if !noStore {
		opts = append(opts, ragflow.WithPersistence())
	}
	opts = append(opts, ragflow.WithOpenAI(model))

	e, err := ragflow.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("assemble engine: %w", err)
	}
	return e, nil
}
