package core

import (
	"testing"
)

func TestTreeNode_Bounds(t *testing.T) {
	n := &TreeNode{Attributes: map[string]string{"bounds": "[10,20][110,70]"}}
	b, ok := n.Bounds()
	if !ok {
		t.Fatalf("Bounds() not parsed")
	}
	want := Bounds{X: 10, Y: 20, Width: 100, Height: 50}
	if b != want {
		t.Errorf("Bounds() = %+v, want %+v", b, want)
	}

	cx, cy := b.Center()
	if cx != 60 || cy != 45 {
		t.Errorf("Center() = (%d, %d), want (60, 45)", cx, cy)
	}
}

func TestTreeNode_BoundsInvalid(t *testing.T) {
	for _, raw := range []string{"", "[1,2]", "[a,b][c,d]", "10,20,30,40x"} {
		n := &TreeNode{Attributes: map[string]string{"bounds": raw}}
		if _, ok := n.Bounds(); ok {
			t.Errorf("Bounds(%q) parsed, want failure", raw)
		}
	}
}

func TestViewHierarchy_AggregateDocumentOrder(t *testing.T) {
	leaf1 := &TreeNode{Attributes: map[string]string{"text": "a"}}
	leaf2 := &TreeNode{Attributes: map[string]string{"text": "b"}}
	child := &TreeNode{Attributes: map[string]string{"text": "parent"}, Children: []*TreeNode{leaf1, leaf2}}
	root := &TreeNode{Children: []*TreeNode{child}}
	h := &ViewHierarchy{Root: root}

	nodes := h.Aggregate()
	if len(nodes) != 4 {
		t.Fatalf("len(Aggregate()) = %d, want 4", len(nodes))
	}
	want := []*TreeNode{root, child, leaf1, leaf2}
	for i, n := range want {
		if nodes[i] != n {
			t.Errorf("Aggregate()[%d] = %v, want %v", i, nodes[i], n)
		}
	}
}

func TestTreeNode_HasDescendant(t *testing.T) {
	leaf := &TreeNode{}
	mid := &TreeNode{Children: []*TreeNode{leaf}}
	root := &TreeNode{Children: []*TreeNode{mid}}

	if !root.HasDescendant(leaf) {
		t.Errorf("HasDescendant(leaf) = false, want true")
	}
	if !root.HasDescendant(root) {
		t.Errorf("HasDescendant(self) = false, want true")
	}
	other := &TreeNode{}
	if root.HasDescendant(other) {
		t.Errorf("HasDescendant(other) = true, want false")
	}
}

func TestCommandStatus(t *testing.T) {
	if StatusRunning.IsTerminal() {
		t.Errorf("running is terminal")
	}
	for _, s := range []CommandStatus{StatusComplete, StatusWarned, StatusSkipped, StatusFailed} {
		if !s.IsTerminal() {
			t.Errorf("%v not terminal", s)
		}
	}
	if StatusFailed.IsSuccess() {
		t.Errorf("failed counts as success")
	}
	if !StatusWarned.IsSuccess() {
		t.Errorf("warned should count as success")
	}
}
