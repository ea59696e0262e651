package output

import (
	"encoding/json"
	"os"

	"github.com/fatih/color"
)

// PrintJSON 输出JSON格式
func PrintJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Success 输出成功消息
func Success(format string, args ...any) {
	color.New(color.FgGreen, color.Bold).Printf("✅ "+format+"\n", args...)
}

// Error 输出错误消息（标准错误）
func Error(format string, args ...any) {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "❌ "+format+"\n", args...)
}

// Info 输出信息
func Info(format string, args ...any) {
	color.New(color.FgCyan).Printf("ℹ️  "+format+"\n", args...)
}

// Warning 输出警告
func Warning(format string, args ...any) {
	color.New(color.FgYellow).Printf("⚠️  "+format+"\n", args...)
}

// Status 带图标的状态文本
func Status(status string) string {
	switch status {
	case "succeeded", "completed":
		return "✅ " + status
	case "failed":
		return "❌ " + status
	case "running":
		return "🔄 " + status
	case "pending":
		return "⏳ " + status
	default:
		return status
	}
}
