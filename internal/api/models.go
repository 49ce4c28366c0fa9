package api

// DatabaseConfig represents configuration for opening a database
type DatabaseConfig struct {
	CacheSize   int  `json:"cacheSize"`   // Pages
	CacheShards int  `json:"cacheShards"` // Rounded up to a power of two
	SyncWrites  bool `json:"syncWrites"`  // Fsync after every put
}

// DatabaseInfo represents information about a database instance
type DatabaseInfo struct {
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	PageSize    int    `json:"pageSize"`
	CacheSize   int    `json:"cacheSize"`
	SyncWrites  bool   `json:"syncWrites"`
	Empty       bool   `json:"empty"`
	RootPage    uint64 `json:"rootPage"`
	Height      int    `json:"height"`
	Keys        int    `json:"keys"`
	LeafNodes   int    `json:"leafNodes"`
	BranchNodes int    `json:"branchNodes"`
	FilePages   uint64 `json:"filePages"`
	UsedBytes   int    `json:"usedBytes"`
	LeafSplits  uint64 `json:"leafSplits"`
	RootSplits  uint64 `json:"rootSplits"`
}

// KeyValue is one entry returned by a lookup or a scan.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TreeNode represents a node in the B+Tree for visualization
type TreeNode struct {
	PageID   uint64   `json:"pageId"`
	Type     string   `json:"type"` // "branch" or "leaf"
	Depth    int      `json:"depth"`
	Keys     []string `json:"keys"`
	Children []uint64 `json:"children,omitempty"`
	Size     int      `json:"size"` // Encoded bytes including the header
}

// TreeStructure represents the whole reachable tree
type TreeStructure struct {
	RootPage uint64              `json:"rootPage"`
	Height   int                 `json:"height"`
	Nodes    map[uint64]TreeNode `json:"nodes"`
}

// CacheStatsInfo represents page cache statistics
type CacheStatsInfo struct {
	Size      int    `json:"size"`
	MaxSize   int    `json:"maxSize"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}
