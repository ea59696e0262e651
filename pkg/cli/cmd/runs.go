package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/LENAX/conduit/pkg/api/dto"
	"github.com/LENAX/conduit/pkg/cli/client"
	"github.com/LENAX/conduit/pkg/cli/output"
)

var (
	runsStatus string
	runsLimit  int
	runsEngine string
	runsParams map[string]string
	runsWait   bool
)

// runsCmd runs子命令
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "远程运行管理命令",
	Long:  `通过HTTP API管理服务端的流水线运行，包括提交、列出、查看状态与读取节点结果。`,
}

// runsSubmitCmd 提交运行
var runsSubmitCmd = &cobra.Command{
	Use:   "submit <pipeline.yaml>",
	Short: "提交流水线到服务端执行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			output.Error("读取流水线文件失败: %v", err)
			return err
		}

		c := client.New(serverURL)
		resp, err := c.SubmitRun(dto.SubmitRunRequest{
			Pipeline: string(content),
			Params:   runsParams,
			Engine:   runsEngine,
		})
		if err != nil {
			output.Error("提交失败: %v", err)
			return err
		}

		if !runsWait {
			if outputJSON {
				return output.PrintJSON(resp)
			}
			output.Success("运行已提交: %s", resp.RunID)
			return nil
		}
		return waitRemote(c, resp.RunID)
	},
}

// runsListCmd 列出运行
var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有运行",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		result, err := c.ListRuns(runsStatus, runsLimit, 0)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无运行")
			return nil
		}

		table := output.NewTable([]string{"RUN_ID", "PIPELINE", "ENGINE", "STATUS", "STARTED", "DURATION"})
		for _, run := range result.Items {
			duration := "-"
			if run.Duration != "" {
				duration = run.Duration
			}
			table.AddRow([]string{
				run.ID,
				run.Pipeline,
				run.Engine,
				output.Status(run.Status),
				run.StartedAt.Format("2006-01-02 15:04:05"),
				duration,
			})
		}
		table.Render()
		if result.HasMore {
			fmt.Printf("\n总计: %d 条记录（仅显示前 %d 条）\n", result.Total, len(result.Items))
		}
		return nil
	},
}

// runsStatusCmd 查看运行状态
var runsStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "查看运行状态与节点进度",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printRemote(client.New(serverURL), args[0])
	},
}

// runsResultCmd 读取节点结果
var runsResultCmd = &cobra.Command{
	Use:   "result <id> <node>",
	Short: "读取节点结果",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		res, err := c.GetResult(args[0], args[1])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(res)
		}
		exit, out := describeResult(res.Result)
		if exit == "-" {
			fmt.Println(string(res.Result))
			return nil
		}
		fmt.Printf("Exit: %s\n%s\n", exit, out)
		return nil
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "按状态过滤 (running/succeeded/failed)")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "返回记录数量限制")

	runsSubmitCmd.Flags().StringVarP(&runsEngine, "engine", "e", "", "引擎类型 (async/pool)")
	runsSubmitCmd.Flags().StringToStringVarP(&runsParams, "param", "p", nil, "覆盖流水线参数 (key=value)")
	runsSubmitCmd.Flags().BoolVar(&runsWait, "wait", false, "等待运行结束并输出状态")

	// 添加子命令
	runsCmd.AddCommand(runsSubmitCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatusCmd)
	runsCmd.AddCommand(runsResultCmd)
}

// waitRemote 轮询直到运行结束
func waitRemote(c *client.Client, id string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		run, err := c.GetRun(id)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if run.Status != "running" {
			break
		}
	}
	return printRemote(c, id)
}

// printRemote 打印远程运行详情与节点状态
func printRemote(c *client.Client, id string) error {
	run, err := c.GetRun(id)
	if err != nil {
		output.Error("查询失败: %v", err)
		return err
	}
	nodes, err := c.GetRunNodes(id)
	if err != nil {
		output.Error("查询节点失败: %v", err)
		return err
	}

	if outputJSON {
		return output.PrintJSON(map[string]any{
			"run":   run,
			"nodes": nodes,
		})
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("Pipeline: %s (%s)\n", run.Pipeline, run.Engine)
	fmt.Printf("Status:   %s\n", output.Status(run.Status))
	fmt.Printf("Progress: %d/%d (%d%%)\n",
		run.Progress.Completed,
		run.Progress.Total,
		calculatePercent(run.Progress.Completed, run.Progress.Total))
	fmt.Printf("Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if run.Error != "" {
		fmt.Printf("Error:    %s\n", run.Error)
	}

	fmt.Println("\nNodes:")
	for _, n := range nodes {
		duration := ""
		if n.Duration != "" {
			duration = " " + n.Duration
		}
		fmt.Printf("  %s%s\n", output.Status(n.State)+"  "+n.Label, duration)
	}
	return nil
}

// calculatePercent 计算百分比
func calculatePercent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return completed * 100 / total
}
