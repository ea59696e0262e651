package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	internalstorage "github.com/LENAX/conduit/internal/storage"
	"github.com/LENAX/conduit/pkg/cli/output"
	"github.com/LENAX/conduit/pkg/config"
	"github.com/LENAX/conduit/pkg/core/engine"
	"github.com/LENAX/conduit/pkg/core/events"
	"github.com/LENAX/conduit/pkg/pipeline"
)

var (
	scheduleCron   string
	scheduleNow    bool
	scheduleEngine string
	scheduleParams map[string]string
)

// scheduleCmd 定时执行流水线
var scheduleCmd = &cobra.Command{
	Use:   "schedule <pipeline.yaml>...",
	Short: "按Cron表达式定时执行流水线",
	Long: `按Cron表达式（支持秒级精度）定时执行一个或多个流水线，直到收到中断信号。
每次触发都会重新读取流水线文件，并创建全新的节点、依赖图与结果存储。
同一流水线上一轮尚未结束时跳过本轮。

示例：
  # 每30秒执行一次，并立即执行一轮
  conduit schedule ./pipeline.yaml --cron "*/30 * * * * *" --now

  # 使用描述符
  conduit schedule a.yaml b.yaml --cron "@every 5m"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		kind := scheduleEngine
		if kind == "" {
			kind = cfg.Conduit.Execution.Engine
		}

		bus := events.NewBus(cfg.IsDebug())
		defer bus.Close()

		cs := engine.NewCronScheduler(engine.WithRunResultHandler(func(r engine.RunResult) {
			if r.Err != nil {
				output.Error("%s 运行失败: run=%s: %v", r.Name, r.RunID, r.Err)
				return
			}
			if r.RunID != "" {
				output.Success("%s 运行完成: run=%s", r.Name, r.RunID)
			}
		}))

		for _, file := range args {
			def, err := pipeline.LoadFile(file)
			if err != nil {
				output.Error("加载流水线失败: %v", err)
				return err
			}
			factory := pipelineRunFactory(cfg, file, kind, scheduleParams, bus)
			if err := cs.Register(def.Name, scheduleCron, factory); err != nil {
				output.Error("注册定时任务失败: %v", err)
				return err
			}
			output.Info("已注册: %s (%s) → %s", def.Name, file, scheduleCron)
		}

		cs.Start()
		if scheduleNow {
			for _, name := range cs.Registered() {
				go func(name string) { _ = cs.Trigger(name) }(name)
			}
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		output.Info("正在停止定时调度，等待进行中的运行结束...")
		cs.Stop()
		output.Success("定时调度已停止")
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "Cron表达式（6段，含秒）或 @every 描述符")
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "启动后立即执行一轮")
	scheduleCmd.Flags().StringVarP(&scheduleEngine, "engine", "e", "", "引擎类型 (async/pool)，默认取配置")
	scheduleCmd.Flags().StringToStringVarP(&scheduleParams, "param", "p", nil, "覆盖流水线参数 (key=value)")
	_ = scheduleCmd.MarkFlagRequired("cron")
}

// pipelineRunFactory 每次触发重新加载流水线文件并构建引擎
func pipelineRunFactory(cfg *config.EngineConfig, file, kind string, params map[string]string, publisher events.Publisher) engine.RunFactory {
	return func(ctx context.Context) (engine.Runner, error) {
		def, err := pipeline.LoadFile(file)
		if err != nil {
			return nil, err
		}
		graph, err := def.Build(pipeline.WithParams(params))
		if err != nil {
			return nil, err
		}

		runID := uuid.NewString()
		store, err := internalstorage.NewRunStore(cfg, runID)
		if err != nil {
			return nil, fmt.Errorf("创建结果存储失败: %w", err)
		}

		opts := append(engine.OptionsFromConfig(cfg), engine.WithRunID(runID), engine.WithEvents(publisher))
		runner, err := engine.NewRunner(kind, graph, store, opts...)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		return &closingRunner{Runner: runner, close: store.Close}, nil
	}
}

// closingRunner 运行结束后关闭结果存储
type closingRunner struct {
	engine.Runner
	close func() error
}

func (r *closingRunner) Start(ctx context.Context) error {
	err := r.Runner.Start(ctx)
	if cerr := r.close(); cerr != nil {
		log.Printf("⚠️ [schedule] 关闭结果存储失败: run=%s: %v", r.RunID(), cerr)
	}
	return err
}
