package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table 简单表格输出
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
	out     io.Writer
}

// NewTable 创建表格
func NewTable(headers []string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	return &Table{
		headers: headers,
		widths:  widths,
		out:     os.Stdout,
	}
}

// SetOutput 设置输出目标
func (t *Table) SetOutput(w io.Writer) *Table {
	t.out = w
	return t
}

// AddRow 添加行，单元格内的换行替换为空格
func (t *Table) AddRow(row []string) {
	cells := make([]string, len(row))
	for i, cell := range row {
		cells[i] = strings.ReplaceAll(cell, "\n", " ")
		if n := utf8.RuneCountInString(cells[i]); i < len(t.widths) && n > t.widths[i] {
			t.widths[i] = n
		}
	}
	t.rows = append(t.rows, cells)
}

// Len 数据行数
func (t *Table) Len() int {
	return len(t.rows)
}

// Render 渲染表格
func (t *Table) Render() {
	headerColor := color.New(color.FgCyan, color.Bold)
	for i, h := range t.headers {
		headerColor.Fprint(t.out, pad(h, t.widths[i]))
	}
	fmt.Fprintln(t.out)

	for i := range t.headers {
		fmt.Fprint(t.out, strings.Repeat("-", t.widths[i]), "  ")
	}
	fmt.Fprintln(t.out)

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(t.widths) {
				fmt.Fprint(t.out, pad(cell, t.widths[i]))
			}
		}
		fmt.Fprintln(t.out)
	}
}

// pad 按字符数左对齐（%-*s 按字节计宽，中文会错位）
func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s + "  "
	}
	return s + strings.Repeat(" ", width-n) + "  "
}

// Truncate 截断过长文本
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
