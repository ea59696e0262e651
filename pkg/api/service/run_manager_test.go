package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/conduit/pkg/config"
	"github.com/LENAX/conduit/pkg/pipeline"
	"github.com/LENAX/conduit/pkg/storage"
)

const chainYAML = `
name: chain
nodes:
  - name: a
    run: printf hello
  - name: b
    run: printf "$CONDUIT_DEP_A world"
    depends_on: [a]
  - name: c
    run: printf done
    depends_on: [a]
`

const failingYAML = `
name: failing
nodes:
  - name: first
    run: exit 4
  - name: second
    run: printf never
    depends_on: [first]
`

func mustParse(t *testing.T, doc string) *pipeline.Definition {
	t.Helper()
	def, err := pipeline.Parse([]byte(doc))
	require.NoError(t, err)
	return def
}

func memoryManager(t *testing.T) *RunManager {
	m := NewRunManager(config.Default(), WithStoreFactory(func(string) (storage.Store, func() error, error) {
		return storage.NewMemoryStore(), func() error { return nil }, nil
	}))
	t.Cleanup(m.Close)
	return m
}

func waitRun(t *testing.T, m *RunManager, id string) RunSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := m.Wait(ctx, id)
	require.NoError(t, err)
	return snap
}

func TestRunManager_SubmitAndWait(t *testing.T) {
	m := memoryManager(t)

	id, err := m.Submit(mustParse(t, chainYAML), RunOptions{})
	require.NoError(t, err)

	snap := waitRun(t, m, id)
	assert.Equal(t, StatusSucceeded, snap.Status)
	assert.Equal(t, "chain", snap.Pipeline)
	assert.Equal(t, config.EngineAsync, snap.Engine)
	require.NotNil(t, snap.FinishedAt)
	assert.Empty(t, snap.Error)

	require.Len(t, snap.Nodes, 3)
	assert.Equal(t, "a", snap.Nodes[0].Label, "节点按拓扑序排列")
	for _, n := range snap.Nodes {
		assert.Equal(t, NodeCompleted, n.State)
		assert.NotNil(t, n.StartedAt)
		assert.NotNil(t, n.FinishedAt)
	}
	assert.Equal(t, 3, snap.Progress()[NodeCompleted])

	res, err := m.Result(context.Background(), id, "b")
	require.NoError(t, err)
	assert.Equal(t, "hello world", res.(pipeline.CommandResult).Stdout)
}

func TestRunManager_Failure(t *testing.T) {
	m := memoryManager(t)

	id, err := m.Submit(mustParse(t, failingYAML), RunOptions{Engine: config.EnginePool})
	require.NoError(t, err)

	snap := waitRun(t, m, id)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "first", snap.FailedNode)
	assert.Contains(t, snap.Error, "exit=4")

	states := map[string]string{}
	for _, n := range snap.Nodes {
		states[n.Label] = n.State
	}
	assert.Equal(t, map[string]string{"first": NodeFailed, "second": NodePending}, states)

	_, err = m.Result(context.Background(), id, "second")
	assert.ErrorIs(t, err, storage.ErrResultNotFound)
}

func TestRunManager_Lookups(t *testing.T) {
	m := memoryManager(t)

	_, ok := m.Get("nope")
	assert.False(t, ok)
	_, err := m.Result(context.Background(), "nope", "a")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = m.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	first, err := m.Submit(mustParse(t, chainYAML), RunOptions{})
	require.NoError(t, err)
	waitRun(t, m, first)
	time.Sleep(2 * time.Millisecond)
	second, err := m.Submit(mustParse(t, chainYAML), RunOptions{ConcurrencyLimit: 1, WorkerPoolSize: 1})
	require.NoError(t, err)
	waitRun(t, m, second)

	_, err = m.Result(context.Background(), first, "zzz")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID, "最新的运行排在最前")
	assert.Equal(t, first, list[1].ID)
}

func TestRunManager_RejectsBadSubmissions(t *testing.T) {
	m := memoryManager(t)

	_, err := m.Submit(mustParse(t, chainYAML), RunOptions{Engine: "threads"})
	assert.Error(t, err)

	def := mustParse(t, "name: p\nnodes:\n  - name: a\n    run: echo ${missing}\n  - name: b\n    run: 'true'\n    depends_on: [a]\n")
	_, err = m.Submit(def, RunOptions{})
	assert.ErrorIs(t, err, pipeline.ErrInvalidDefinition)

	m.Close()
	_, err = m.Submit(mustParse(t, chainYAML), RunOptions{})
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestRunManager_LocalStoreResultsSurviveTeardown(t *testing.T) {
	cfg := config.Default()
	cfg.Conduit.Storage.Type = config.StorageLocal
	cfg.Conduit.Storage.Dir = t.TempDir()
	m := NewRunManager(cfg)
	defer m.Close()

	id, err := m.Submit(mustParse(t, chainYAML), RunOptions{})
	require.NoError(t, err)
	snap := waitRun(t, m, id)
	require.Equal(t, StatusSucceeded, snap.Status, snap.Error)

	_, statErr := os.Stat(filepath.Join(cfg.Conduit.Storage.Dir, id))
	assert.True(t, os.IsNotExist(statErr), "运行结束后临时目录应已删除")

	res, err := m.Result(context.Background(), id, "a")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.(pipeline.CommandResult).Stdout)
}

func TestPlanOf(t *testing.T) {
	plan, err := PlanOf(mustParse(t, chainYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, "a", plan.Order[0])
	assert.ElementsMatch(t, []string{"b", "c"}, plan.Order[1:])
	require.Len(t, plan.Levels, 2)
	assert.Equal(t, []string{"a"}, plan.Levels[0])
	assert.ElementsMatch(t, []string{"b", "c"}, plan.Levels[1])
	assert.Equal(t, 2, plan.Width)
}
