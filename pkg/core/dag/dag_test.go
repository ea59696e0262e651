package dag

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/conduit/pkg/core/node"
	"github.com/LENAX/conduit/pkg/core/result"
)

func newNode(label string) *node.Node {
	return node.New(label, func(ctx context.Context, n *node.Node, deps map[string]result.Result, args ...any) (result.Empty, error) {
		return result.Empty{}, nil
	})
}

func newNodes(count int) []*node.Node {
	nodes := make([]*node.Node, count+1)
	for i := 1; i <= count; i++ {
		nodes[i] = newNode(fmt.Sprint(i))
	}
	return nodes
}

func labels(nodes []*node.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Label()
	}
	return out
}

// sampleGraph 1->3, 2->3, 3->4, 3->5, 5->6
func sampleGraph(t *testing.T) (*Dag, []*node.Node) {
	n := newNodes(6)
	d := New()
	for _, arc := range [][2]int{{1, 3}, {2, 3}, {3, 4}, {3, 5}, {5, 6}} {
		_, err := d.AddArc(n[arc[0]], n[arc[1]])
		require.NoError(t, err)
	}
	return d, n
}

func TestDag_SourcesAndSinks(t *testing.T) {
	d, _ := sampleGraph(t)

	assert.ElementsMatch(t, []string{"1", "2"}, labels(d.Sources()))
	assert.ElementsMatch(t, []string{"4", "6"}, labels(d.Sinks()))
	assert.Equal(t, []string{"1", "2", "3", "5", "4", "6"}, d.Labels())
	assert.Equal(t, 6, d.Len())
}

func TestDag_AddArcChaining(t *testing.T) {
	n := newNodes(3)
	d := New()
	d, err := d.AddArc(n[1], n[2])
	require.NoError(t, err)
	_, err = d.AddArc(n[2], n[3])
	require.NoError(t, err)

	assert.Len(t, d.Arcs(), 2)
	assert.Equal(t, d, d.MustAddArc(n[1], n[3]))
}

func TestDag_CycleLeavesArcsUnchanged(t *testing.T) {
	d, n := sampleGraph(t)
	before := d.Arcs()

	_, err := d.AddArc(n[6], n[1])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, cycleErr.Cycle[0], cycleErr.Cycle[len(cycleErr.Cycle)-1])

	assert.True(t, reflect.DeepEqual(before, d.Arcs()), "失败的插入不应修改边集合")

	// 自环
	_, err = d.AddArc(n[4], n[4])
	assert.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, before, d.Arcs())
}

func TestDag_DisconnectedArc(t *testing.T) {
	d, _ := sampleGraph(t)
	x, y := newNode("x"), newNode("y")

	_, err := d.AddArc(x, y)
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Len(t, d.Arcs(), 5)
}

func TestDag_DuplicateLabel(t *testing.T) {
	d, n := sampleGraph(t)
	impostor := newNode("3")

	_, err := d.AddArc(impostor, n[6])
	assert.ErrorIs(t, err, ErrDuplicateLabel)

	_, err = New().AddArc(newNode("a"), newNode("a"))
	assert.ErrorIs(t, err, ErrDuplicateLabel)
}

func TestDag_NotInGraph(t *testing.T) {
	d, _ := sampleGraph(t)
	stranger := newNode("stranger")

	_, err := d.Neighbors(stranger)
	assert.ErrorIs(t, err, ErrNotInGraph)
	_, err = d.DirectDependencies(stranger)
	assert.ErrorIs(t, err, ErrNotInGraph)
	_, err = d.AllDependencies(stranger)
	assert.ErrorIs(t, err, ErrNotInGraph)
	level, err := d.Level(stranger, nil)
	assert.ErrorIs(t, err, ErrNotInGraph)
	assert.Equal(t, -1, level)

	// 同标签的不同实例也不属于该图
	_, err = d.Neighbors(newNode("3"))
	assert.ErrorIs(t, err, ErrNotInGraph)
}

func TestDag_Queries(t *testing.T) {
	d, n := sampleGraph(t)

	deps, err := d.DirectDependencies(n[3])
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, labels(deps))

	neighbors, err := d.Neighbors(n[3])
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "5"}, labels(neighbors))

	sinkNeighbors, err := d.Neighbors(n[6])
	require.NoError(t, err)
	assert.Empty(t, sinkNeighbors)

	found, ok := d.NodeByLabel("5")
	require.True(t, ok)
	assert.Same(t, n[5], found)
	_, ok = d.NodeByLabel("missing")
	assert.False(t, ok)
}

func TestDag_EnumeratePaths(t *testing.T) {
	d, n := sampleGraph(t)

	var got []string
	for _, path := range d.EnumeratePaths() {
		got = append(got, fmt.Sprint(labels(path)))
	}
	assert.Equal(t, []string{
		"[1 3 4]", "[1 3 5 6]",
		"[2 3 4]", "[2 3 5 6]",
	}, got)

	all, err := d.AllDependencies(n[6])
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3", "5", "2"}, labels(all))

	all, err = d.AllDependencies(n[1])
	require.NoError(t, err)
	assert.Empty(t, all)

	path := d.EnumeratePaths()[1]
	level, err := d.Level(n[5], path)
	require.NoError(t, err)
	assert.Equal(t, 2, level)
	level, err = d.Level(n[4], path)
	require.NoError(t, err)
	assert.Equal(t, -1, level)
}

func TestTopologicalSort_RespectsArcs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		count := 2 + rng.Intn(15)
		n := newNodes(count)

		// 只从小编号指向大编号，保证无环；打乱加边顺序
		var arcs []Arc
		for i := 1; i < count; i++ {
			arcs = append(arcs, Arc{Src: n[i], Dst: n[i+1+rng.Intn(count-i)]})
		}
		for k := 0; k < count; k++ {
			i := 1 + rng.Intn(count-1)
			j := i + 1 + rng.Intn(count-i)
			arcs = append(arcs, Arc{Src: n[i], Dst: n[j]})
		}
		rng.Shuffle(len(arcs), func(i, j int) { arcs[i], arcs[j] = arcs[j], arcs[i] })

		order, err := TopologicalSort(arcs)
		require.NoError(t, err)

		pos := make(map[*node.Node]int, len(order))
		for i, x := range order {
			pos[x] = i
		}
		for _, a := range arcs {
			assert.Less(t, pos[a.Src], pos[a.Dst], "round %d: %s 应在 %s 之前", round, a.Src.Label(), a.Dst.Label())
		}
		assert.Len(t, order, len(nodesOf(arcs)))
	}
}

func TestTopologicalSort_DoesNotMutateInput(t *testing.T) {
	n := newNodes(3)
	arcs := []Arc{{n[1], n[2]}, {n[2], n[3]}, {n[3], n[1]}}
	snapshot := append([]Arc(nil), arcs...)

	_, err := TopologicalSort(arcs)
	assert.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, snapshot, arcs)
}

func TestTopologicalSort_Empty(t *testing.T) {
	order, err := New().TopologicalSort()
	require.NoError(t, err)
	assert.Empty(t, order)
}

// diamondGraph 1->3, 2->3, 3->4, 3->5, 5->6, 4->7, 6->7, 7->8
func diamondGraph(t *testing.T) *Dag {
	n := newNodes(8)
	d := New()
	for _, arc := range [][2]int{{1, 3}, {2, 3}, {3, 4}, {3, 5}, {5, 6}, {4, 7}, {6, 7}, {7, 8}} {
		_, err := d.AddArc(n[arc[0]], n[arc[1]])
		require.NoError(t, err)
	}
	return d
}

func TestDag_LevelsAndWidth(t *testing.T) {
	d := diamondGraph(t)

	levels, err := d.Levels()
	require.NoError(t, err)

	var got [][]string
	for _, level := range levels {
		got = append(got, labels(level))
	}
	assert.Equal(t, [][]string{{"1", "2"}, {"3"}, {"5", "4"}, {"6"}, {"7"}, {"8"}}, got)

	width, err := d.Width()
	require.NoError(t, err)
	assert.Equal(t, 2, width)

	empty, err := New().Levels()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDag_LevelsWithDuplicateArcs(t *testing.T) {
	n := newNodes(2)
	d := New().MustAddArc(n[1], n[2]).MustAddArc(n[1], n[2])

	levels, err := d.Levels()
	require.NoError(t, err)
	assert.Len(t, levels, 2)
}

// 节点只有未导出字段，go-dag 索引必须按节点ID区分顶点
func TestDag_LevelsDistinguishesNodes(t *testing.T) {
	n := newNodes(3)
	d := New().MustAddArc(n[1], n[2]).MustAddArc(n[1], n[3])

	levels, err := d.Levels()
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, []*node.Node{n[1]}, levels[0])
	assert.Equal(t, []*node.Node{n[2], n[3]}, levels[1])

	width, err := d.Width()
	require.NoError(t, err)
	assert.Equal(t, 2, width)
}

func TestBuilder(t *testing.T) {
	n := newNodes(4)
	// 依赖声明顺序与加边顺序无关
	d, err := NewBuilder().
		Add(n[4], "3").
		Add(n[1]).
		Add(n[2]).
		Add(n[3], "1", "2").
		Build()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"1", "2"}, labels(d.Sources()))
	assert.Equal(t, []string{"4"}, labels(d.Sinks()))

	_, err = NewBuilder().Add(n[1]).Add(newNode("1")).Build()
	assert.ErrorIs(t, err, ErrDuplicateLabel)

	_, err = NewBuilder().Add(n[1], "ghost").Build()
	assert.ErrorIs(t, err, ErrNotInGraph)

	_, err = NewBuilder().Add(n[1]).Add(n[2], "1").Add(n[3]).Build()
	assert.ErrorIs(t, err, ErrIsolatedNode)

	_, err = NewBuilder().Add(n[1]).Add(n[2], "1").Add(n[3]).Add(n[4], "3").Build()
	assert.ErrorIs(t, err, ErrDisconnected)

	_, err = NewBuilder().Add(n[1], "2").Add(n[2], "1").Build()
	assert.ErrorIs(t, err, ErrCycle)
}
