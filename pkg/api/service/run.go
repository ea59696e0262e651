package service

import (
	"errors"
	"sync"
	"time"

	"github.com/LENAX/conduit/pkg/core/dag"
	"github.com/LENAX/conduit/pkg/core/engine"
	"github.com/LENAX/conduit/pkg/core/node"
	"github.com/LENAX/conduit/pkg/core/result"
	"github.com/LENAX/conduit/pkg/storage"
)

// run 一次运行的内部状态
type run struct {
	id       string
	pipeline string
	engine   string

	order   []*node.Node
	kinds   map[string]result.Kind
	results *storage.MemoryStore
	done    chan struct{}

	mu         sync.RWMutex
	status     RunStatus
	startedAt  time.Time
	finishedAt *time.Time
	err        error
	failedNode string
	nodeStart  map[string]time.Time
	nodeEnd    map[string]time.Time
}

func newRun(id, pipelineName, engineKind string) *run {
	return &run{
		id:        id,
		pipeline:  pipelineName,
		engine:    engineKind,
		results:   storage.NewMemoryStore(),
		done:      make(chan struct{}),
		status:    StatusRunning,
		startedAt: time.Now(),
		nodeStart: make(map[string]time.Time),
		nodeEnd:   make(map[string]time.Time),
	}
}

// bind 记录图的拓扑序与各节点的结果类型
func (r *run) bind(graph *dag.Dag) error {
	order, err := graph.TopologicalSort()
	if err != nil {
		return err
	}
	r.order = order
	r.kinds = make(map[string]result.Kind, len(order))
	for _, n := range order {
		r.kinds[n.Label()] = n.Kind()
	}
	return nil
}

func (r *run) onTransition(n *node.Node, from, to node.State) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	switch to {
	case node.Running:
		r.nodeStart[n.Label()] = now
	case node.Complete:
		r.nodeEnd[n.Label()] = now
	}
}

func (r *run) finish(err error) {
	now := time.Now()
	r.mu.Lock()
	r.finishedAt = &now
	r.err = err
	if err != nil {
		r.status = StatusFailed
		var schedErr *engine.SchedulerError
		if errors.As(err, &schedErr) {
			r.failedNode = schedErr.Node
		}
	} else {
		r.status = StatusSucceeded
	}
	r.mu.Unlock()
	close(r.done)
}

func (r *run) snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := RunSnapshot{
		ID:         r.id,
		Pipeline:   r.pipeline,
		Engine:     r.engine,
		Status:     r.status,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
		FailedNode: r.failedNode,
		Nodes:      make([]NodeSnapshot, 0, len(r.order)),
	}
	if r.err != nil {
		s.Error = r.err.Error()
	}

	for _, n := range r.order {
		ns := NodeSnapshot{Label: n.Label()}
		if t, ok := r.nodeStart[n.Label()]; ok {
			ns.StartedAt = &t
		}
		if t, ok := r.nodeEnd[n.Label()]; ok {
			ns.FinishedAt = &t
		}
		switch n.State() {
		case node.Idle:
			ns.State = NodePending
		case node.Complete:
			ns.State = NodeCompleted
		default:
			ns.State = NodeRunning
			if n.Label() == r.failedNode || (r.finishedAt != nil && r.err != nil) {
				// 运行已中止，仍停在 Running 的节点即失败节点
				ns.State = NodeFailed
			}
		}
		s.Nodes = append(s.Nodes, ns)
	}
	return s
}
