package avl

import (
	"context"
	"fmt"
	"io"

	"github.com/xlab/treeprint"
)

// DebugPrint writes a rendering of the tree. Under each node the right child is listed before the left, so it reads like the tree rotated a quarter turn.
func (t *Tree[K, V]) DebugPrint(ctx context.Context, w io.Writer) error {
	if t.root.IsEmpty() {
		_, err := fmt.Fprintln(w, "(empty tree)")
		return err
	}
	n, err := t.root.Resolve(ctx, t.tc)
	if err != nil {
		return err
	}

	tree := treeprint.NewWithRoot(describeNode(t.root, n))
	if err := t.tc.debugChildren(ctx, tree, n); err != nil {
		return err
	}
	_, err = io.WriteString(w, tree.String())
	return err
}

func (tc *TreeContext[K, V]) debugChildren(ctx context.Context, tree treeprint.Tree, n *Node[K, V]) error {
	for _, side := range []struct {
		label string
		ref   NodeRef[K, V]
	}{{"R", n.right}, {"L", n.left}} {
		child, err := side.ref.Resolve(ctx, tc)
		if err != nil {
			return err
		}
		if child == nil {
			continue
		}

		label := side.label + " " + describeNode(side.ref, child)
		if child.left.IsEmpty() && child.right.IsEmpty() {
			tree.AddNode(label)
			continue
		}
		if err := tc.debugChildren(ctx, tree.AddBranch(label), child); err != nil {
			return err
		}
	}
	return nil
}

func describeNode[K, V any](ref NodeRef[K, V], n *Node[K, V]) string {
	hash := "unhashed"
	if h := ref.Hash(); h != nil {
		hash = fmt.Sprintf("%x", h)
		if len(hash) > 12 {
			hash = hash[:12]
		}
	}
	return fmt.Sprintf("%v -> %v (h=%d r=%d %s %s)", n.data.Key, n.data.Value, n.data.Height, n.data.Rank, ref.Kind(), hash)
}
