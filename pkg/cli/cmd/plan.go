package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LENAX/conduit/pkg/api/service"
	"github.com/LENAX/conduit/pkg/cli/output"
	"github.com/LENAX/conduit/pkg/pipeline"
)

var planParams map[string]string

// planCmd 查看执行计划
var planCmd = &cobra.Command{
	Use:   "plan <pipeline.yaml>",
	Short: "查看流水线的分层执行计划",
	Long: `构建依赖图并输出拓扑序与分层结果，不执行任何节点。
同一层中的节点互不依赖，可以并行执行；最大层宽即可能的最大并行度。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := pipeline.LoadFile(args[0])
		if err != nil {
			output.Error("加载流水线失败: %v", err)
			return err
		}

		plan, err := service.PlanOf(def, planParams)
		if err != nil {
			output.Error("构建执行计划失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(plan)
		}

		fmt.Printf("Pipeline: %s\n", def.Name)
		if def.Description != "" {
			fmt.Printf("          %s\n", def.Description)
		}
		fmt.Printf("Nodes:    %d\n", len(plan.Order))
		fmt.Printf("Width:    %d\n\n", plan.Width)

		table := output.NewTable([]string{"LEVEL", "NODES"})
		for i, level := range plan.Levels {
			table.AddRow([]string{strconv.Itoa(i), strings.Join(level, ", ")})
		}
		table.Render()

		fmt.Printf("\n执行顺序: %s\n", strings.Join(plan.Order, " → "))
		return nil
	},
}

func init() {
	planCmd.Flags().StringToStringVarP(&planParams, "param", "p", nil, "覆盖流水线参数 (key=value)")
}
