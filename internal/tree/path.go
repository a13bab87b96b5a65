package tree

// PathTo walks parent links from the node to the root and returns the ids
// root-first, ending in the node itself. Iteration is bounded by the total
// node count so a corrupted parent chain can never loop forever.
func (t *Tree) PathTo(id string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pathLocked(id)
}

// pathLocked is PathTo for callers already holding the lock.
func (t *Tree) pathLocked(id string) ([]string, error) {
	node, ok := t.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}

	path := []string{id}
	for steps := 0; node.ParentID != "" && steps < len(t.nodes); steps++ {
		parent, ok := t.nodes[node.ParentID]
		if !ok {
			// Dangling parent link; treat the node as a root.
			break
		}
		path = append(path, parent.ID)
		node = parent
	}

	// Reverse in place: the walk collected leaf-first.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// PathNodes returns copies of the nodes on the root-first path to id.
func (t *Tree) PathNodes(id string) ([]Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids, err := t.pathLocked(id)
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, len(ids))
	for i, nid := range ids {
		nodes[i] = t.nodes[nid].clone()
	}
	return nodes, nil
}
