package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LENAX/conduit/pkg/api"
	"github.com/LENAX/conduit/pkg/api/service"
	"github.com/LENAX/conduit/pkg/cli/output"
	"github.com/LENAX/conduit/pkg/core/events"
)

var (
	serverPort int
	serverHost string
)

// serveCmd 启动服务
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP API服务",
	Long: `启动Conduit HTTP API服务，通过 API 提交流水线运行、查询节点状态与结果，
并通过 WebSocket 订阅运行事件。

示例：
  # 使用默认配置启动
  conduit serve

  # 指定端口启动
  conduit serve --port 8080

  # 指定配置文件启动
  conduit serve --config ./configs/conduit.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.Conduit.Server.Host = serverHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Conduit.Server.Port = serverPort
		}

		bus := events.NewBus(cfg.IsDebug())
		manager := service.NewRunManager(cfg, service.WithPublisher(bus))

		serverCfg := api.DefaultServerConfig()
		serverCfg.Host = cfg.Conduit.Server.Host
		serverCfg.Port = cfg.Conduit.Server.Port
		apiServer := api.NewAPIServer(manager, bus, serverCfg, Version)

		// 在goroutine中启动服务器
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Printf("API服务器错误: %v", err)
			}
		}()

		output.Success("Conduit Server started on %s (engine=%s, storage=%s)",
			apiServer.Addr(), cfg.Conduit.Execution.Engine, cfg.GetStorageType())

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		output.Info("正在关闭服务...")

		// 优雅关闭
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.WriteTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			output.Error("关闭API服务器失败: %v", err)
		}
		manager.Close()
		_ = bus.Close()
		output.Success("服务已停止")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&serverPort, "port", "P", 8080, "监听端口")
	serveCmd.Flags().StringVarP(&serverHost, "host", "H", "0.0.0.0", "监听地址")
}
