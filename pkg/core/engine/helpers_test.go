package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LENAX/conduit/pkg/core/dag"
	"github.com/LENAX/conduit/pkg/core/node"
	"github.com/LENAX/conduit/pkg/core/result"
	"github.com/LENAX/conduit/pkg/storage"
)

// recordingStore 记录每次读写的全局序号，用于校验先写后读
type recordingStore struct {
	inner *storage.MemoryStore
	seq   atomic.Int64

	mu     sync.Mutex
	writes map[string][]int64
	reads  map[string][]int64 // 被读取的标签 -> 读取序号

	createCalls atomic.Int32
	deleteCalls atomic.Int32
	deleteErr   error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		inner:  storage.NewMemoryStore(),
		writes: make(map[string][]int64),
		reads:  make(map[string][]int64),
	}
}

func (s *recordingStore) WriteResult(ctx context.Context, res result.Result, label string) error {
	if err := s.inner.WriteResult(ctx, res, label); err != nil {
		return err
	}
	seq := s.seq.Add(1)
	s.mu.Lock()
	s.writes[label] = append(s.writes[label], seq)
	s.mu.Unlock()
	return nil
}

func (s *recordingStore) ReadResult(ctx context.Context, label string, kind result.Kind) (result.Result, error) {
	seq := s.seq.Add(1)
	s.mu.Lock()
	s.reads[label] = append(s.reads[label], seq)
	s.mu.Unlock()
	return s.inner.ReadResult(ctx, label, kind)
}

func (s *recordingStore) CreateScratchArea(ctx context.Context) error {
	s.createCalls.Add(1)
	return nil
}

func (s *recordingStore) DeleteScratchArea(ctx context.Context, ignoreMissing bool) error {
	s.deleteCalls.Add(1)
	return s.deleteErr
}

func (s *recordingStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, w := range s.writes {
		total += len(w)
	}
	return total
}

// timedNode 睡眠指定时长后返回自身标签
func timedNode(label string, d time.Duration, opts ...node.Option) *node.Node {
	return node.New(label, func(ctx context.Context, n *node.Node, deps map[string]result.Result, args ...any) (result.Text, error) {
		time.Sleep(d)
		return result.Text{Value: n.Label()}, nil
	}, opts...)
}

var errBoom = errors.New("boom")

func failingNode(label string) *node.Node {
	return node.New(label, func(ctx context.Context, n *node.Node, deps map[string]result.Result, args ...any) (result.Empty, error) {
		return result.Empty{}, errBoom
	})
}

var diamondArcs = [][2]int{{1, 3}, {2, 3}, {3, 4}, {3, 5}, {5, 6}, {4, 7}, {6, 7}, {7, 8}}

// buildDiamond 按给定时长构建菱形图，返回图与 标签->节点
func buildDiamond(t *testing.T, durations map[int]time.Duration, opts ...node.Option) (*dag.Dag, map[int]*node.Node) {
	t.Helper()
	nodes := make(map[int]*node.Node, 8)
	for i := 1; i <= 8; i++ {
		nodes[i] = timedNode(fmt.Sprint(i), durations[i], opts...)
	}
	d := dag.New()
	for _, arc := range diamondArcs {
		_, err := d.AddArc(nodes[arc[0]], nodes[arc[1]])
		require.NoError(t, err)
	}
	return d, nodes
}

// diamondDurations 总和460ms，关键路径260ms
var diamondDurations = map[int]time.Duration{
	1: 100 * time.Millisecond,
	2: 100 * time.Millisecond,
	3: 20 * time.Millisecond,
	4: 100 * time.Millisecond,
	5: 50 * time.Millisecond,
	6: 50 * time.Millisecond,
	7: 20 * time.Millisecond,
	8: 20 * time.Millisecond,
}

func totalDuration(durations map[int]time.Duration) time.Duration {
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total
}
