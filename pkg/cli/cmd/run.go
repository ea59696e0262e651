package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/LENAX/conduit/pkg/api/service"
	"github.com/LENAX/conduit/pkg/cli/output"
	"github.com/LENAX/conduit/pkg/config"
	"github.com/LENAX/conduit/pkg/core/engine"
	"github.com/LENAX/conduit/pkg/core/events"
	"github.com/LENAX/conduit/pkg/pipeline"
)

var (
	runParams      map[string]string
	runEngine      string
	runConcurrency int
	runWorkers     int
	runFanOut      int
	runChild       bool
)

// runCmd 本地执行流水线
var runCmd = &cobra.Command{
	Use:   "run <pipeline.yaml>...",
	Short: "在本地执行流水线",
	Long: `在本地执行流水线，节点按依赖顺序调度。

使用 --fan-out 时每个子运行在独立进程中执行（重新执行当前程序），
子运行之间不共享任何状态，一个失败不影响其他。

示例：
  # 使用线程池引擎执行
  conduit run ./pipeline.yaml --engine pool --workers 4

  # 同一流水线在 4 个进程中各执行一次
  conduit run ./pipeline.yaml --fan-out 4

  # 不指定数量时取配置 execution.max_processors
  conduit run ./pipeline.yaml --fan-out

  # 多个流水线并行执行，每个一个进程
  conduit run a.yaml b.yaml --fan-out 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if runFanOut != 0 {
			return fanOut(ctx, cfg, args)
		}
		if len(args) > 1 {
			return fmt.Errorf("多个流水线需要配合 --fan-out 使用")
		}

		def, err := pipeline.LoadFile(args[0])
		if err != nil {
			output.Error("加载流水线失败: %v", err)
			return err
		}
		if runChild {
			color.NoColor = true
		}
		return runLocal(ctx, cfg, def)
	},
}

func init() {
	runCmd.Flags().StringToStringVarP(&runParams, "param", "p", nil, "覆盖流水线参数 (key=value)")
	runCmd.Flags().StringVarP(&runEngine, "engine", "e", "", "引擎类型 (async/pool)，默认取配置")
	runCmd.Flags().IntVarP(&runConcurrency, "concurrency", "k", 0, "协作式引擎并发上限")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "工作池大小")
	runCmd.Flags().IntVar(&runFanOut, "fan-out", 0, "多进程扇出的最大进程数 M，不带值时取配置 max_processors")
	runCmd.Flags().Lookup("fan-out").NoOptDefVal = "-1"
	runCmd.Flags().BoolVar(&runChild, "child", false, "作为扇出子进程运行")
	_ = runCmd.Flags().MarkHidden("child")
}

// runReport 本地运行的 JSON 输出
type runReport struct {
	Run     service.RunSnapshot        `json:"run"`
	Results map[string]json.RawMessage `json:"results"`
}

// runLocal 在当前进程中执行一次运行并输出节点结果
func runLocal(ctx context.Context, cfg *config.EngineConfig, def *pipeline.Definition) error {
	bus := events.NewBus(cfg.IsDebug())
	defer bus.Close()
	manager := service.NewRunManager(cfg, service.WithPublisher(bus))
	defer manager.Close()

	sub, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	runID, err := manager.Submit(def, service.RunOptions{
		Engine:           runEngine,
		ConcurrencyLimit: runConcurrency,
		WorkerPoolSize:   runWorkers,
		Params:           runParams,
	})
	if err != nil {
		output.Error("提交运行失败: %v", err)
		return err
	}

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		printProgress(sub, runID, outputJSON)
	}()

	snap, err := manager.Wait(ctx, runID)
	if err != nil {
		output.Error("等待运行结束失败: %v", err)
		return err
	}
	select {
	case <-progressDone:
	case <-time.After(time.Second):
	}

	results := make(map[string]json.RawMessage, len(snap.Nodes))
	for _, n := range snap.Nodes {
		res, err := manager.Result(ctx, runID, n.Label)
		if err != nil {
			continue
		}
		if payload, err := res.Serialize(); err == nil {
			results[n.Label] = payload
		}
	}

	if outputJSON {
		if err := output.PrintJSON(runReport{Run: snap, Results: results}); err != nil {
			return err
		}
	} else {
		printRun(snap, results)
	}

	if snap.Status == service.StatusFailed {
		return errors.New(snap.Error)
	}
	return nil
}

// printProgress 打印节点生命周期事件，收到终止事件后返回
func printProgress(sub <-chan *events.Event, runID string, quiet bool) {
	for e := range sub {
		if e.RunID != runID {
			continue
		}
		if !quiet {
			switch e.Type {
			case events.EventNodeStarted:
				fmt.Printf("▶️  %s\n", e.Node)
			case events.EventNodeCompleted:
				fmt.Printf("✅ %s (%dms)\n", e.Node, e.Duration)
			case events.EventNodeFailed:
				color.Red("❌ %s: %s", e.Node, e.Error)
			}
		}
		if e.Terminal() {
			return
		}
	}
}

// printRun 打印运行摘要和节点结果表
func printRun(snap service.RunSnapshot, results map[string]json.RawMessage) {
	fmt.Println()
	fmt.Printf("Run:      %s\n", snap.ID)
	fmt.Printf("Pipeline: %s (%s)\n", snap.Pipeline, snap.Engine)
	fmt.Printf("Status:   %s\n", output.Status(string(snap.Status)))
	if snap.FinishedAt != nil {
		fmt.Printf("Duration: %s\n", snap.FinishedAt.Sub(snap.StartedAt).Round(time.Millisecond))
	}
	if snap.Error != "" {
		fmt.Printf("Error:    %s\n", snap.Error)
	}
	fmt.Println()

	table := output.NewTable([]string{"NODE", "STATE", "EXIT", "DURATION", "OUTPUT"})
	for _, n := range snap.Nodes {
		exit, out := describeResult(results[n.Label])
		duration := "-"
		if n.StartedAt != nil && n.FinishedAt != nil {
			duration = n.FinishedAt.Sub(*n.StartedAt).Round(time.Millisecond).String()
		}
		table.AddRow([]string{n.Label, output.Status(n.State), exit, duration, out})
	}
	table.Render()
}

// describeResult 命令结果显示退出码和输出，其他结果显示原始JSON
func describeResult(payload json.RawMessage) (exit, out string) {
	if payload == nil {
		return "-", "-"
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err == nil {
		if _, ok := fields["exit_code"]; ok {
			var cr pipeline.CommandResult
			if err := json.Unmarshal(payload, &cr); err == nil {
				text := cr.Stdout
				if strings.TrimSpace(text) == "" {
					text = cr.Stderr
				}
				return strconv.Itoa(cr.ExitCode), output.Truncate(text, 60)
			}
		}
	}
	return "-", output.Truncate(string(payload), 60)
}

// fanOutProcessors 扇出进程数：命令行指定优先，否则取配置
func fanOutProcessors(cfg *config.EngineConfig) int {
	if runFanOut > 0 {
		return runFanOut
	}
	return cfg.GetMaxProcessors()
}

// fanOut 每个子运行在独立进程中执行 `conduit run --child`
func fanOut(ctx context.Context, cfg *config.EngineConfig, files []string) error {
	fo, err := engine.NewFanOut(fanOutProcessors(cfg))
	if err != nil {
		output.Error("创建扇出引擎失败: %v", err)
		return err
	}

	children := files
	if len(files) == 1 {
		children = make([]string, fo.MaxProcessors())
		for i := range children {
			children[i] = files[0]
		}
	}
	for i, file := range children {
		child, err := engine.SelfChild(fmt.Sprintf("%d:%s", i, file), childArgs(file)...)
		if err != nil {
			return err
		}
		if err := fo.Add(child); err != nil {
			output.Error("添加子运行失败: %v", err)
			return err
		}
	}

	reports, runErr := fo.Start(ctx)
	if outputJSON {
		if err := output.PrintJSON(toChildReports(reports)); err != nil {
			return err
		}
		return runErr
	}

	table := output.NewTable([]string{"CHILD", "CHILD_ID", "EXIT", "DURATION", "ERROR"})
	for _, r := range reports {
		errMsg := "-"
		if r.Err != nil {
			errMsg = output.Truncate(r.Err.Error(), 50)
		}
		table.AddRow([]string{r.Name, r.ID, strconv.Itoa(r.ExitCode), r.Duration.Round(time.Millisecond).String(), errMsg})
	}
	table.Render()

	if runErr != nil {
		output.Error("部分子运行失败")
		return runErr
	}
	output.Success("全部 %d 个子运行完成", len(reports))
	return nil
}

// childArgs 子进程参数，透传全局配置与运行参数
func childArgs(file string) []string {
	args := []string{"run", file, "--child"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if runEngine != "" {
		args = append(args, "--engine", runEngine)
	}
	if runConcurrency > 0 {
		args = append(args, "--concurrency", strconv.Itoa(runConcurrency))
	}
	if runWorkers > 0 {
		args = append(args, "--workers", strconv.Itoa(runWorkers))
	}

	keys := make([]string, 0, len(runParams))
	for k := range runParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--param", k+"="+runParams[k])
	}
	return args
}

type childReport struct {
	Name       string `json:"name"`
	ID         string `json:"id"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
	Output     string `json:"output"`
	Error      string `json:"error,omitempty"`
}

func toChildReports(reports []engine.ChildReport) []childReport {
	out := make([]childReport, 0, len(reports))
	for _, r := range reports {
		item := childReport{
			Name:       r.Name,
			ID:         r.ID,
			ExitCode:   r.ExitCode,
			DurationMs: r.Duration.Milliseconds(),
			Output:     r.Output,
		}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		out = append(out, item)
	}
	return out
}
