/*
Package org models the department hierarchy used to route approvals.

ARENA:
  A Tree stores departments in a slice and references parents by index,
  not by pointer. Looking up the ancestors of a department is a loop over
  parent indices, which stays valid when the tree is rebuilt from storage
  in any order.

MANAGERS ARE NOT INHERITED:
  ManagersAt returns only the managers assigned to that exact department.
  Walking up the tree to collect approvers is the approval builder's job.

USAGE:
  tree, err := org.NewTree(departments)
  chain, err := tree.Ancestors("d3")   // [d3, d4, d5, d0]
  managers := tree.ManagersAt("d4")
*/
package org

import (
	"fmt"
	"sort"

	"github.com/warp/absence-engine/generic"
)

// Department is one node of the organization. Parent is empty for roots.
type Department struct {
	ID       generic.DepartmentID
	Name     string
	Parent   generic.DepartmentID
	Managers []generic.UserID
}

// node is the arena entry; parent is -1 for roots.
type node struct {
	dept   Department
	parent int
}

// Tree is an immutable snapshot of the hierarchy. It is safe for
// concurrent readers; edits produce a new Tree.
type Tree struct {
	nodes []node
	index map[generic.DepartmentID]int
}

// NewTree indexes departments and resolves parent references. It fails on
// duplicate ids, unknown parents and parent loops.
func NewTree(departments []Department) (*Tree, error) {
	t := &Tree{
		nodes: make([]node, 0, len(departments)),
		index: make(map[generic.DepartmentID]int, len(departments)),
	}

	for _, d := range departments {
		if d.ID == "" {
			return nil, fmt.Errorf("department without id")
		}
		if _, dup := t.index[d.ID]; dup {
			return nil, fmt.Errorf("duplicate department %s", d.ID)
		}
		d.Managers = append([]generic.UserID(nil), d.Managers...)
		t.index[d.ID] = len(t.nodes)
		t.nodes = append(t.nodes, node{dept: d, parent: -1})
	}

	for i := range t.nodes {
		parent := t.nodes[i].dept.Parent
		if parent == "" {
			continue
		}
		p, ok := t.index[parent]
		if !ok {
			return nil, fmt.Errorf("parent %s of department %s: %w", parent, t.nodes[i].dept.ID, generic.ErrDepartmentNotFound)
		}
		t.nodes[i].parent = p
	}

	for i := range t.nodes {
		if err := t.checkAcyclic(i); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// checkAcyclic follows parents from i; a path longer than the arena loops.
func (t *Tree) checkAcyclic(i int) error {
	steps := 0
	for cur := i; cur != -1; cur = t.nodes[cur].parent {
		if steps > len(t.nodes) {
			return fmt.Errorf("from department %s: %w", t.nodes[i].dept.ID, generic.ErrHierarchyCycle)
		}
		steps++
	}
	return nil
}

// Len returns the number of departments.
func (t *Tree) Len() int { return len(t.nodes) }

// Get returns a copy of the department.
func (t *Tree) Get(id generic.DepartmentID) (Department, bool) {
	i, ok := t.index[id]
	if !ok {
		return Department{}, false
	}
	return t.copyOf(i), true
}

// Departments returns copies of every department, sorted by id.
func (t *Tree) Departments() []Department {
	out := make([]Department, 0, len(t.nodes))
	for i := range t.nodes {
		out = append(out, t.copyOf(i))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ancestors returns the chain from id up to its root, id included.
func (t *Tree) Ancestors(id generic.DepartmentID) ([]Department, error) {
	i, ok := t.index[id]
	if !ok {
		return nil, fmt.Errorf("department %s: %w", id, generic.ErrDepartmentNotFound)
	}

	var chain []Department
	for cur := i; cur != -1; cur = t.nodes[cur].parent {
		chain = append(chain, t.copyOf(cur))
	}
	return chain, nil
}

// ManagersAt returns the managers assigned directly to the department, or
// nil when the department is unknown or has none.
func (t *Tree) ManagersAt(id generic.DepartmentID) []generic.UserID {
	i, ok := t.index[id]
	if !ok || len(t.nodes[i].dept.Managers) == 0 {
		return nil
	}
	return append([]generic.UserID(nil), t.nodes[i].dept.Managers...)
}

// Children returns the ids of the direct children of the department.
func (t *Tree) Children(id generic.DepartmentID) []generic.DepartmentID {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	var out []generic.DepartmentID
	for j := range t.nodes {
		if t.nodes[j].parent == i {
			out = append(out, t.nodes[j].dept.ID)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

func (t *Tree) copyOf(i int) Department {
	d := t.nodes[i].dept
	d.Managers = append([]generic.UserID(nil), d.Managers...)
	return d
}
