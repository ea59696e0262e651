package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/conduit/pkg/config"
	"github.com/LENAX/conduit/pkg/core/dag"
	"github.com/LENAX/conduit/pkg/core/events"
	"github.com/LENAX/conduit/pkg/core/executor"
	"github.com/LENAX/conduit/pkg/core/node"
	"github.com/LENAX/conduit/pkg/core/result"
	"github.com/LENAX/conduit/pkg/storage"
)

type engineFactory func(graph *dag.Dag, store storage.Store, opts ...Option) Runner

var engines = map[string]engineFactory{
	"async": func(graph *dag.Dag, store storage.Store, opts ...Option) Runner {
		return NewAsyncEngine(graph, store, opts...)
	},
	"pool": func(graph *dag.Dag, store storage.Store, opts ...Option) Runner {
		return NewPoolEngine(graph, store, opts...)
	},
}

func TestEngines_EmptyGraph(t *testing.T) {
	for name, newEngine := range engines {
		t.Run(name, func(t *testing.T) {
			store := newRecordingStore()
			start := time.Now()
			require.NoError(t, newEngine(dag.New(), store).Start(context.Background()))
			assert.Less(t, time.Since(start), 50*time.Millisecond)
			assert.Zero(t, store.writeCount())
		})
	}
}

func TestEngines_SingleTransitionAndWritePerNode(t *testing.T) {
	for name, newEngine := range engines {
		t.Run(name, func(t *testing.T) {
			var mu sync.Mutex
			transitions := make(map[string][]string)
			hook := node.WithTransitionHook(func(n *node.Node, from, to node.State) {
				mu.Lock()
				transitions[n.Label()] = append(transitions[n.Label()], from.String()+"->"+to.String())
				mu.Unlock()
			})

			graph, nodes := buildDiamond(t, map[int]time.Duration{}, hook)
			store := newRecordingStore()
			require.NoError(t, newEngine(graph, store, WithConcurrencyLimit(3), WithWorkerPoolSize(3)).Start(context.Background()))

			for i, n := range nodes {
				assert.Equal(t, node.Complete, n.State(), "node %d", i)
				assert.Equal(t, []string{"Idle->Running", "Running->Complete"}, transitions[n.Label()], "node %d", i)
				assert.Len(t, store.writes[n.Label()], 1, "node %d", i)
			}
			assert.Equal(t, 8, store.writeCount())
		})
	}
}

func TestEngines_DependencyWriteHappensBeforeRead(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for name, newEngine := range engines {
		t.Run(name, func(t *testing.T) {
			for round := 0; round < 10; round++ {
				durations := make(map[int]time.Duration, 8)
				for i := 1; i <= 8; i++ {
					durations[i] = time.Duration(rng.Intn(8)) * time.Millisecond
				}
				graph, _ := buildDiamond(t, durations)
				store := newRecordingStore()

				require.NoError(t, newEngine(graph, store, WithConcurrencyLimit(4), WithWorkerPoolSize(4), WithPollInterval(5*time.Millisecond)).Start(context.Background()))

				for label, reads := range store.reads {
					writes := store.writes[label]
					require.Len(t, writes, 1, "round %d: %s", round, label)
					for _, r := range reads {
						assert.Less(t, writes[0], r, "round %d: %s 在写入前被读取", round, label)
					}
				}
				// 7 有两个依赖，8 依赖 7，所有非起点节点的依赖都被读取过
				for _, arc := range diamondArcs {
					assert.NotEmpty(t, store.reads[fmt.Sprint(arc[0])])
				}
			}
		})
	}
}

func TestAsyncEngine_ConcurrencyLimitSerializes(t *testing.T) {
	graph, _ := buildDiamond(t, diamondDurations)
	e := NewAsyncEngine(graph, newRecordingStore(), WithConcurrencyLimit(1), WithWorkerPoolSize(8))
	assert.Equal(t, 1, e.ConcurrencyLimit())

	start := time.Now()
	require.NoError(t, e.Start(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, totalDuration(diamondDurations), "K=1 时总耗时应不少于各节点耗时之和")
}

func TestAsyncEngine_WideLimitFollowsCriticalPath(t *testing.T) {
	graph, _ := buildDiamond(t, diamondDurations)
	width, err := graph.Width()
	require.NoError(t, err)

	e := NewAsyncEngine(graph, newRecordingStore(), WithConcurrencyLimit(width), WithWorkerPoolSize(8))
	start := time.Now()
	require.NoError(t, e.Start(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 260*time.Millisecond)
	assert.Less(t, elapsed, totalDuration(diamondDurations)-50*time.Millisecond, "K>=宽度时耗时应接近关键路径")
}

func TestAsyncEngine_LimitAbovePoolSize(t *testing.T) {
	graph, _ := buildDiamond(t, nil)
	store := newRecordingStore()
	e := NewAsyncEngine(graph, store, WithConcurrencyLimit(1001), WithWorkerPoolSize(2))
	assert.Equal(t, 1001, e.ConcurrencyLimit())
	assert.Equal(t, 2, e.opts.workerPoolSize)

	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, 8, store.writeCount())
}

func TestAsyncEngine_InflightNodeLaunchedOnce(t *testing.T) {
	release := make(chan struct{})
	a := node.New("a", func(ctx context.Context, n *node.Node, deps map[string]result.Result, args ...any) (result.Empty, error) {
		<-release
		return result.Empty{}, nil
	})
	b := timedNode("b", 0)
	graph := dag.New().MustAddArc(a, b)

	store := newRecordingStore()
	e := NewAsyncEngine(graph, store, WithWorkerPoolSize(2))
	exec, err := executor.NewExecutor(2)
	require.NoError(t, err)
	exec.Start()
	defer exec.Shutdown()
	e.exec = exec

	ctx := context.Background()
	require.NoError(t, e.launchBatch(ctx, []*node.Node{a}))
	assert.True(t, e.isRunning(a))

	// 在途节点再次出现在批次中时被跳过
	require.NoError(t, e.launchBatch(ctx, []*node.Node{a}))
	assert.Empty(t, e.readyNodes())

	close(release)
	e.inflight.Wait()

	assert.Equal(t, 1, store.writeCount())
	assert.Equal(t, node.Complete, a.State())
	assert.False(t, e.isRunning(a))
}

func TestPoolEngine_PoolSizeBoundsParallelism(t *testing.T) {
	graph, _ := buildDiamond(t, diamondDurations)
	serial := NewPoolEngine(graph, newRecordingStore(), WithWorkerPoolSize(1))
	assert.Equal(t, 1, serial.PoolSize())

	start := time.Now()
	require.NoError(t, serial.Start(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), totalDuration(diamondDurations))

	graph, _ = buildDiamond(t, diamondDurations)
	parallel := NewPoolEngine(graph, newRecordingStore(), WithWorkerPoolSize(4))
	start = time.Now()
	require.NoError(t, parallel.Start(context.Background()))
	assert.Less(t, time.Since(start), totalDuration(diamondDurations)-50*time.Millisecond)
}

func TestEngines_FailureAbortsRunAndTearsDown(t *testing.T) {
	for name, newEngine := range engines {
		t.Run(name, func(t *testing.T) {
			one, two, four := timedNode("1", 0), timedNode("2", 0), timedNode("4", 0)
			three := failingNode("3")
			graph := dag.New().MustAddArc(one, three).MustAddArc(two, three).MustAddArc(three, four)

			store := newRecordingStore()
			err := newEngine(graph, store, WithRunID("run-fail")).Start(context.Background())
			require.Error(t, err)

			var schedErr *SchedulerError
			require.ErrorAs(t, err, &schedErr)
			assert.Equal(t, "3", schedErr.Node)
			assert.Equal(t, "run-fail", schedErr.RunID)
			assert.ErrorIs(t, err, errBoom)

			assert.Equal(t, node.Idle, four.State(), "失败节点的下游不应执行")
			assert.Empty(t, store.writes["4"])
			assert.Equal(t, int32(1), store.createCalls.Load())
			assert.Equal(t, int32(2), store.deleteCalls.Load(), "运行前清理一次，运行后删除一次")
		})
	}
}

func TestEngines_TeardownErrors(t *testing.T) {
	for name, newEngine := range engines {
		t.Run(name, func(t *testing.T) {
			build := func() *dag.Dag {
				return dag.New().MustAddArc(timedNode("a", 0), timedNode("b", 0))
			}

			store := newRecordingStore()
			store.deleteErr = fmt.Errorf("disk gone")
			assert.NoError(t, newEngine(build(), store).Start(context.Background()), "默认忽略清理错误")

			err := newEngine(build(), store, WithStrictTeardown()).Start(context.Background())
			assert.ErrorContains(t, err, "disk gone")
		})
	}
}

func TestEngines_WithLocalStore(t *testing.T) {
	for name, newEngine := range engines {
		t.Run(name, func(t *testing.T) {
			store := storage.NewLocalStore(t.TempDir() + "/scratch")
			graph, nodes := buildDiamond(t, map[int]time.Duration{})

			require.NoError(t, newEngine(graph, store).Start(context.Background()))
			for _, n := range nodes {
				assert.Equal(t, node.Complete, n.State())
			}
			// 运行结束后临时目录已删除
			assert.ErrorIs(t, store.DeleteScratchArea(context.Background(), false), storage.ErrScratchAreaMissing)
		})
	}
}

func TestEngines_PublishEvents(t *testing.T) {
	for name, newEngine := range engines {
		t.Run(name, func(t *testing.T) {
			bus := events.NewBus(false)
			defer bus.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sub, err := bus.SubscribeRun(ctx, "run-events")
			require.NoError(t, err)

			graph := dag.New().MustAddArc(timedNode("a", 0), timedNode("b", 0))
			require.NoError(t, newEngine(graph, storage.NewMemoryStore(), WithRunID("run-events"), WithEvents(bus)).Start(ctx))

			counts := make(map[events.EventType]int)
			timeout := time.After(2 * time.Second)
			for counts[events.EventRunCompleted] == 0 || counts[events.EventNodeCompleted] < 2 {
				select {
				case e := <-sub:
					counts[e.Type]++
				case <-timeout:
					t.Fatalf("等待事件超时: %v", counts)
				}
			}
			assert.Equal(t, 1, counts[events.EventRunStarted])
			assert.Equal(t, 2, counts[events.EventNodeStarted])
		})
	}
}

func TestBaseQueries(t *testing.T) {
	a, b, c := timedNode("a", 0), timedNode("b", 0), timedNode("c", 0)
	graph := dag.New().MustAddArc(a, c).MustAddArc(b, c)
	e := NewAsyncEngine(graph, storage.NewMemoryStore())

	assert.Len(t, e.NodesInState(node.Idle), 3)
	assert.True(t, e.IsReady(a))
	assert.False(t, e.IsReady(c))
	assert.False(t, e.AllComplete())

	store := storage.NewMemoryStore()
	require.NoError(t, a.Start(context.Background(), nil, store))
	require.NoError(t, b.Start(context.Background(), nil, store))
	assert.True(t, e.IsReady(c))
	assert.Len(t, e.NodesInState(node.Complete), 2)

	require.NoError(t, c.Start(context.Background(), []*node.Node{a, b}, store))
	assert.True(t, e.AllComplete())
	assert.NotEmpty(t, e.RunID())
}

func TestEngines_RepeatRunAfterReset(t *testing.T) {
	graph, nodes := buildDiamond(t, map[int]time.Duration{})
	store := newRecordingStore()

	require.NoError(t, NewAsyncEngine(graph, store).Start(context.Background()))
	graph.Reset()
	for _, n := range nodes {
		assert.Equal(t, node.Idle, n.State())
	}
	require.NoError(t, NewPoolEngine(graph, store).Start(context.Background()))
	assert.Equal(t, 16, store.writeCount())
}

func TestNewRunner(t *testing.T) {
	graph := dag.New().MustAddArc(timedNode("a", 0), timedNode("b", 0))
	store := storage.NewMemoryStore()

	r, err := NewRunner(config.EngineAsync, graph, store)
	require.NoError(t, err)
	assert.IsType(t, &AsyncEngine{}, r)

	r, err = NewRunner(config.EnginePool, graph, store, WithWorkerPoolSize(3))
	require.NoError(t, err)
	assert.Equal(t, 3, r.(*PoolEngine).PoolSize())

	_, err = NewRunner("threads", graph, store)
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Conduit.Execution.ConcurrencyLimit = 2
	cfg.Conduit.Execution.WorkerPoolSize = 5
	cfg.Conduit.Execution.StrictTeardown = true

	s := newSettings(OptionsFromConfig(cfg))
	assert.Equal(t, 2, s.concurrencyLimit)
	assert.Equal(t, 5, s.workerPoolSize)
	assert.Equal(t, 100*time.Millisecond, s.pollInterval)
	assert.True(t, s.strictTeardown)
}
