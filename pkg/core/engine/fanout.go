package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/conduit/pkg/core/events"
)

var (
	// ErrTooManyProcessors M 超过可用的CPU核数
	ErrTooManyProcessors = errors.New("进程数超过可用CPU核数")
	// ErrFanOutFull 子运行数量已达到 M
	ErrFanOutFull = errors.New("扇出子运行已满")
)

// ChildIDEnv 子进程中标识本次子运行的环境变量
const ChildIDEnv = "CONDUIT_CHILD_ID"

// ChildRun 一个独立的子运行：在独立进程中构建自己的图、存储和引擎
type ChildRun struct {
	Name string
	Path string   // 可执行文件路径
	Args []string // 不含程序名
	Env  []string // 追加到当前环境变量之后
}

// SelfChild 以当前可执行文件创建子运行
func SelfChild(name string, args ...string) (ChildRun, error) {
	path, err := os.Executable()
	if err != nil {
		return ChildRun{}, fmt.Errorf("获取可执行文件路径失败: %w", err)
	}
	return ChildRun{Name: name, Path: path, Args: args}, nil
}

// ChildReport 子运行结果
type ChildReport struct {
	Name     string
	ID       string
	ExitCode int
	Duration time.Duration
	Output   string // 合并后的标准输出与标准错误
	Err      error
}

// FanOut 进程扇出引擎（对外导出）
// 最多 M 个子运行，各自在独立进程中执行，互不共享状态；一个失败不影响其他
type FanOut struct {
	maxProcessors int
	children      []ChildRun
	opts          settings
}

// NewFanOut 创建进程扇出引擎，maxProcessors<=0 时取CPU核数
func NewFanOut(maxProcessors int, opts ...Option) (*FanOut, error) {
	if maxProcessors <= 0 {
		maxProcessors = runtime.NumCPU()
	}
	if maxProcessors > runtime.NumCPU() {
		return nil, fmt.Errorf("%w: M=%d, CPU=%d", ErrTooManyProcessors, maxProcessors, runtime.NumCPU())
	}
	return &FanOut{maxProcessors: maxProcessors, opts: newSettings(opts)}, nil
}

// MaxProcessors 返回 M
func (f *FanOut) MaxProcessors() int {
	return f.maxProcessors
}

// RunID 返回本次扇出的标识
func (f *FanOut) RunID() string {
	return f.opts.runID
}

// Add 添加子运行
func (f *FanOut) Add(child ChildRun) error {
	if len(f.children) >= f.maxProcessors {
		return fmt.Errorf("%w: M=%d", ErrFanOutFull, f.maxProcessors)
	}
	if child.Path == "" {
		return fmt.Errorf("子运行 %s 未指定可执行文件", child.Name)
	}
	if child.Name == "" {
		child.Name = fmt.Sprintf("child-%d", len(f.children))
	}
	f.children = append(f.children, child)
	return nil
}

// Len 返回子运行数量
func (f *FanOut) Len() int {
	return len(f.children)
}

// Start 启动所有子进程并等待全部结束（对外导出）
// 返回的 error 合并了所有失败子运行的错误
func (f *FanOut) Start(ctx context.Context) ([]ChildReport, error) {
	log.Printf("🚀 [FanOut] 扇出开始: run=%s, children=%d, M=%d", f.RunID(), len(f.children), f.maxProcessors)
	events.Emit(ctx, f.opts.publisher, events.NewEvent(events.EventRunStarted, f.RunID(), "").WithMetadata("engine", "FanOut"))
	start := time.Now()

	reports := make([]ChildReport, len(f.children))
	cmds := make([]*exec.Cmd, len(f.children))
	outputs := make([]*bytes.Buffer, len(f.children))

	// 先全部启动，再全部等待
	for i, child := range f.children {
		id := uuid.NewString()
		reports[i] = ChildReport{Name: child.Name, ID: id, ExitCode: -1}

		cmd := exec.CommandContext(ctx, child.Path, child.Args...)
		cmd.Env = append(append(os.Environ(), child.Env...), ChildIDEnv+"="+id)
		outputs[i] = &bytes.Buffer{}
		cmd.Stdout = outputs[i]
		cmd.Stderr = outputs[i]

		if err := cmd.Start(); err != nil {
			reports[i].Err = fmt.Errorf("启动子进程失败: %s: %w", child.Name, err)
			continue
		}
		cmds[i] = cmd
	}

	var wg sync.WaitGroup
	for i, cmd := range cmds {
		if cmd == nil {
			continue
		}
		wg.Add(1)
		go func(i int, cmd *exec.Cmd) {
			defer wg.Done()
			childStart := time.Now()
			err := cmd.Wait()
			reports[i].Duration = time.Since(childStart)
			reports[i].ExitCode = cmd.ProcessState.ExitCode()
			if err != nil {
				reports[i].Err = fmt.Errorf("子运行失败: %s: %w", f.children[i].Name, err)
			}
		}(i, cmd)
	}
	wg.Wait()

	var errs []error
	for i := range reports {
		reports[i].Output = outputs[i].String()
		r := reports[i]
		evt := events.NewEvent(events.EventChildExited, f.RunID(), r.Name).
			WithDuration(r.Duration).
			WithMetadata("child_id", r.ID).
			WithMetadata("exit_code", fmt.Sprint(r.ExitCode)).
			WithError(r.Err)
		events.Emit(ctx, f.opts.publisher, evt)

		if r.Err != nil {
			log.Printf("❌ [FanOut] 子运行失败: name=%s, exit=%d: %v", r.Name, r.ExitCode, r.Err)
			errs = append(errs, r.Err)
			continue
		}
		log.Printf("✅ [FanOut] 子运行完成: name=%s, 耗时=%v", r.Name, r.Duration)
	}

	err := errors.Join(errs...)
	if err != nil {
		events.Emit(ctx, f.opts.publisher, events.NewEvent(events.EventRunFailed, f.RunID(), "").WithError(err).WithDuration(time.Since(start)))
	} else {
		events.Emit(ctx, f.opts.publisher, events.NewEvent(events.EventRunCompleted, f.RunID(), "").WithDuration(time.Since(start)))
	}
	log.Printf("⏱️ [FanOut] 扇出结束: run=%s, 失败=%d, 耗时=%v", f.RunID(), len(errs), time.Since(start))
	return reports, err
}
