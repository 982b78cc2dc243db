/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package aggregate

import (
	"sort"

	"github.com/CovenantSQL/trustindex/types"
	"github.com/CovenantSQL/trustindex/utils/log"
)

type node struct {
	perm     *types.Permission
	parent   int
	children []int
}

// Forest is an arena of the permissions of one schema, linked by validator_perm_id.
//
// Nodes are addressed by index, a permission without validator, an ECOSYSTEM permission
// and a permission whose validator is outside the arena are roots.
type Forest struct {
	nodes     []node
	index     map[int64]int
	roots     []int
	postOrder []int
}

// BuildForest links perms into a forest. The input slice is not modified.
func BuildForest(perms []*types.Permission) *Forest {
	sorted := make([]*types.Permission, len(perms))
	copy(sorted, perms)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	f := &Forest{
		nodes: make([]node, 0, len(sorted)),
		index: make(map[int64]int, len(sorted)),
	}
	for _, p := range sorted {
		if _, dup := f.index[p.ID]; dup {
			continue
		}
		f.index[p.ID] = len(f.nodes)
		f.nodes = append(f.nodes, node{perm: p, parent: -1})
	}
	for i := range f.nodes {
		p := f.nodes[i].perm
		if p.IsRoot() {
			continue
		}
		if j, ok := f.index[*p.ValidatorPermID]; ok && j != i {
			f.nodes[i].parent = j
			f.nodes[j].children = append(f.nodes[j].children, i)
		}
	}

	f.breakCycles()
	for i := range f.nodes {
		if f.nodes[i].parent < 0 {
			f.roots = append(f.roots, i)
		}
	}
	f.traverse()
	return f
}

// breakCycles detaches one node of every validator cycle so the traversal terminates.
func (f *Forest) breakCycles() {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make([]int, len(f.nodes))
	for i := range f.nodes {
		var path []int
		cur := i
		for {
			if state[cur] == done {
				break
			}
			if state[cur] == onPath {
				log.WithField("permission", f.nodes[cur].perm.ID).Warning("validator cycle detected, treated as root")
				f.detach(cur)
				break
			}
			state[cur] = onPath
			path = append(path, cur)
			if f.nodes[cur].parent < 0 {
				break
			}
			cur = f.nodes[cur].parent
		}
		for _, n := range path {
			state[n] = done
		}
	}
}

func (f *Forest) detach(i int) {
	parent := f.nodes[i].parent
	if parent < 0 {
		return
	}
	siblings := f.nodes[parent].children
	for k, c := range siblings {
		if c == i {
			f.nodes[parent].children = append(siblings[:k:k], siblings[k+1:]...)
			break
		}
	}
	f.nodes[i].parent = -1
}

// traverse records the post-order of every tree, children before their parent.
func (f *Forest) traverse() {
	type frame struct {
		idx  int
		next int
	}
	f.postOrder = make([]int, 0, len(f.nodes))
	for _, r := range f.roots {
		stack := []frame{{idx: r}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := f.nodes[top.idx].children
			if top.next < len(children) {
				child := children[top.next]
				top.next++
				stack = append(stack, frame{idx: child})
				continue
			}
			f.postOrder = append(f.postOrder, top.idx)
			stack = stack[:len(stack)-1]
		}
	}
}

// Len returns the number of permissions in the forest.
func (f *Forest) Len() int {
	return len(f.nodes)
}

// Get returns the permission with id.
func (f *Forest) Get(id int64) (p *types.Permission, ok bool) {
	var i int
	if i, ok = f.index[id]; ok {
		p = f.nodes[i].perm
	}
	return
}

// IDs returns the ids of all permissions in ascending order.
func (f *Forest) IDs() []int64 {
	ids := make([]int64, len(f.nodes))
	for i, n := range f.nodes {
		ids[i] = n.perm.ID
	}
	return ids
}

// Roots returns the root permissions.
func (f *Forest) Roots() []*types.Permission {
	out := make([]*types.Permission, len(f.roots))
	for i, r := range f.roots {
		out[i] = f.nodes[r].perm
	}
	return out
}

// PostOrder returns every permission, children before their parent.
func (f *Forest) PostOrder() []*types.Permission {
	out := make([]*types.Permission, len(f.postOrder))
	for i, n := range f.postOrder {
		out[i] = f.nodes[n].perm
	}
	return out
}

// Children returns the ids of the direct children of id.
func (f *Forest) Children(id int64) (ids []int64) {
	i, ok := f.index[id]
	if !ok {
		return
	}
	for _, c := range f.nodes[i].children {
		ids = append(ids, f.nodes[c].perm.ID)
	}
	return
}

// Ancestors returns the set made of id and every permission on its validator chain.
func (f *Forest) Ancestors(id int64) map[int64]struct{} {
	set := make(map[int64]struct{})
	i, ok := f.index[id]
	for ok && i >= 0 {
		set[f.nodes[i].perm.ID] = struct{}{}
		i = f.nodes[i].parent
	}
	return set
}

// Descendants returns the set made of id and every permission of its subtree.
func (f *Forest) Descendants(id int64) map[int64]struct{} {
	set := make(map[int64]struct{})
	i, ok := f.index[id]
	if !ok {
		return set
	}
	stack := []int{i}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		set[f.nodes[n].perm.ID] = struct{}{}
		stack = append(stack, f.nodes[n].children...)
	}
	return set
}
