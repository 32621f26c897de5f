package pipeline

import "sort"

// Graph is the directed adjacency of service names. It tolerates cycles and
// self-loops; every name it references must resolve to a Service owned by
// the same Pipeline. Unlike the teacher library's core.Graph, this type
// carries no locking: spec.md §5 requires the solver to be single-threaded
// and re-entrancy is a caller contract, not a runtime-enforced one.
type Graph struct {
	// downstream[v] is the ordered list of v's direct downstream service names.
	downstream map[string][]string
	// order preserves the insertion order of service names, used to place
	// nodes the topological sort does not reach (spec.md §4.6).
	order []string
}

// NewGraph builds a Graph from an ordered adjacency map. names is the
// insertion order of all known services (including ones with no declared
// edges); adjacency need not mention every name.
func NewGraph(names []string, adjacency map[string][]string) *Graph {
	g := &Graph{
		downstream: make(map[string][]string, len(names)),
		order:      append([]string(nil), names...),
	}
	for _, n := range names {
		g.downstream[n] = append([]string(nil), adjacency[n]...)
	}
	return g
}

// Downstream returns v's ordered direct downstream service names.
func (g *Graph) Downstream(v string) []string {
	return g.downstream[v]
}

// Upstream returns every service u such that v appears in g.Downstream(u),
// sorted by name for deterministic iteration.
func (g *Graph) Upstream(v string) []string {
	var ups []string
	for _, u := range g.order {
		for _, w := range g.downstream[u] {
			if w == v {
				ups = append(ups, u)
				break
			}
		}
	}
	sort.Strings(ups)
	return ups
}

// Names returns all known service names in insertion order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// sccState carries Tarjan's algorithm bookkeeping across its recursive
// (here: explicit-stack, to avoid recursion-depth limits on large graphs)
// traversal.
type sccState struct {
	index   map[string]int
	lowlink map[string]int
	onStack map[string]bool
	stack   []string
	counter int
	sccs    [][]string
}

// SCCs computes the strongly connected components of g via Tarjan's
// algorithm. Each component's members are emitted in the order they were
// popped from Tarjan's stack (spec.md §4.6). Components are returned in
// the order Tarjan completes them, so a component comes before every
// component that reaches it.
func (g *Graph) SCCs() [][]string {
	st := &sccState{
		index:   make(map[string]int, len(g.order)),
		lowlink: make(map[string]int, len(g.order)),
		onStack: make(map[string]bool, len(g.order)),
	}

	for _, v := range g.order {
		if _, seen := st.index[v]; !seen {
			g.tarjanStrongconnect(v, st)
		}
	}

	return st.sccs
}

// tarjanFrame is one level of the explicit call stack used to emulate
// Tarjan's recursive strongconnect without unbounded Go-stack recursion.
type tarjanFrame struct {
	v        string
	children []string
	childIdx int
}

func (g *Graph) tarjanStrongconnect(root string, st *sccState) {
	frames := []*tarjanFrame{{v: root, children: g.downstream[root]}}
	st.index[root] = st.counter
	st.lowlink[root] = st.counter
	st.counter++
	st.stack = append(st.stack, root)
	st.onStack[root] = true

	for len(frames) > 0 {
		top := frames[len(frames)-1]

		if top.childIdx < len(top.children) {
			w := top.children[top.childIdx]
			top.childIdx++

			if _, seen := st.index[w]; !seen {
				st.index[w] = st.counter
				st.lowlink[w] = st.counter
				st.counter++
				st.stack = append(st.stack, w)
				st.onStack[w] = true
				frames = append(frames, &tarjanFrame{v: w, children: g.downstream[w]})
				continue
			} else if st.onStack[w] {
				if st.index[w] < st.lowlink[top.v] {
					st.lowlink[top.v] = st.index[w]
				}
			}
			continue
		}

		// All children processed: pop this frame, propagate lowlink to
		// the caller, and emit the component if v is a root.
		frames = frames[:len(frames)-1]
		if len(frames) > 0 {
			parent := frames[len(frames)-1]
			if st.lowlink[top.v] < st.lowlink[parent.v] {
				st.lowlink[parent.v] = st.lowlink[top.v]
			}
		}

		if st.lowlink[top.v] == st.index[top.v] {
			var comp []string
			for {
				n := len(st.stack) - 1
				w := st.stack[n]
				st.stack = st.stack[:n]
				st.onStack[w] = false
				comp = append(comp, w)
				if w == top.v {
					break
				}
			}
			st.sccs = append(st.sccs, comp)
		}
	}
}

// CondensationOrder returns a deterministic traversal order over services
// suitable for the flow propagator: services are grouped by SCC, SCCs are
// ordered by a Kahn topological sort of the SCC condensation (which is
// acyclic by construction), and any service unreached by the sort (e.g.
// isolated nodes with no declared edges) is appended in insertion order
// (spec.md §4.6).
func (g *Graph) CondensationOrder() []string {
	sccs := g.SCCs()

	sccOf := make(map[string]int, len(g.order))
	for i, comp := range sccs {
		for _, v := range comp {
			sccOf[v] = i
		}
	}

	// Build the condensation DAG's adjacency and in-degree.
	n := len(sccs)
	adj := make([][]int, n)
	seen := make([]map[int]bool, n)
	for i := range seen {
		seen[i] = make(map[int]bool)
	}
	indegree := make([]int, n)

	for _, v := range g.order {
		from := sccOf[v]
		for _, w := range g.downstream[v] {
			to := sccOf[w]
			if to == from || seen[from][to] {
				continue
			}
			seen[from][to] = true
			adj[from] = append(adj[from], to)
			indegree[to]++
		}
	}

	// Services with no edges at all stay out of the sort; the
	// insertion-order append below places them.
	hasEdge := make([]bool, n)
	for _, v := range g.order {
		for _, w := range g.downstream[v] {
			hasEdge[sccOf[v]] = true
			hasEdge[sccOf[w]] = true
		}
	}

	// Kahn's algorithm, seeding the queue with indegree-zero SCCs in
	// SCCs() order for determinism.
	var queue []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 && hasEdge[i] {
			queue = append(queue, i)
		}
	}

	var sccOrder []int
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		sccOrder = append(sccOrder, i)
		for _, to := range adj[i] {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	visited := make(map[string]bool, len(g.order))
	out := make([]string, 0, len(g.order))
	for _, i := range sccOrder {
		for _, v := range sccs[i] {
			out = append(out, v)
			visited[v] = true
		}
	}

	// Append anything the sort never reached: services absent from every
	// edge, in insertion order.
	for _, v := range g.order {
		if !visited[v] {
			out = append(out, v)
		}
	}

	return out
}
