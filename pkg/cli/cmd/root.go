package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/LENAX/conduit/pkg/cli/output"
	"github.com/LENAX/conduit/pkg/config"
)

var (
	// 全局变量
	serverURL  string
	outputJSON bool
	configPath string
)

// defaultConfigPaths 未指定 --config 时依次查找
var defaultConfigPaths = []string{
	"./configs/conduit.yaml",
	"./config/conduit.yaml",
	"./conduit.yaml",
}

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "conduit",
	Short: "Conduit - DAG 流水线执行引擎",
	Long: `Conduit 按依赖关系调度流水线中的节点，支持协作式引擎、线程池引擎与多进程扇出。

支持的功能：
  - 本地执行流水线（run），查看执行计划（plan）
  - 按Cron表达式定时执行（schedule）
  - 启动HTTP API服务（serve），并通过 runs 子命令远程管理运行

使用示例：
  # 本地执行流水线
  conduit run ./pipeline.yaml --param date=2024-01-01

  # 查看分层执行计划
  conduit plan ./pipeline.yaml

  # 每5分钟执行一次
  conduit schedule ./pipeline.yaml --cron "0 */5 * * * *"

  # 启动HTTP服务
  conduit serve --port 8080`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Conduit服务器地址")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径")

	// 添加子命令
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig 加载引擎配置，找不到配置文件时使用默认值
func loadConfig() (*config.EngineConfig, error) {
	path := configPath
	if path == "" {
		for _, p := range defaultConfigPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path == "" {
		return config.Default(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		output.Error("加载配置失败: %v", err)
		return nil, err
	}
	if !outputJSON {
		output.Info("使用配置文件: %s", path)
	}
	return cfg, nil
}
