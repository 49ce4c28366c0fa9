package api

import "amsdb/internal/page"

// GetTreeStructure builds the full tree structure for visualization
func GetTreeStructure(db *DatabaseInstance) (*TreeStructure, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.tree == nil {
		return nil, ErrDatabaseClosed
	}

	structure := &TreeStructure{Nodes: make(map[uint64]TreeNode)}
	snap := db.tree.Snapshot()
	root, ok := snap.Root()
	if !ok {
		return structure, nil
	}
	structure.RootPage = root

	err := snap.Walk(func(index page.PageIndex, node page.Node, depth int, _, _ []byte) error {
		structure.Height = max(structure.Height, depth+1)

		keys := make([]string, 0, len(node.Keys()))
		for _, k := range node.Keys() {
			keys = append(keys, string(k))
		}

		tn := TreeNode{
			PageID: index,
			Type:   "leaf",
			Depth:  depth,
			Keys:   keys,
			Size:   node.EncodedSize(),
		}
		if branch, ok := node.(*page.BranchNode); ok {
			tn.Type = "branch"
			tn.Children = append([]uint64(nil), branch.Children...)
		}
		structure.Nodes[index] = tn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return structure, nil
}

// GetCacheStatsInfo retrieves cache statistics
func GetCacheStatsInfo(db *DatabaseInstance) (*CacheStatsInfo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.tree == nil {
		return nil, ErrDatabaseClosed
	}

	pager := db.tree.GetPager()
	stats := pager.GetCacheStats()

	return &CacheStatsInfo{
		Size:      stats.Size,
		MaxSize:   pager.GetMaxCacheSize(),
		Hits:      stats.Hits,
		Misses:    stats.Misses,
		Evictions: stats.Evictions,
	}, nil
}
