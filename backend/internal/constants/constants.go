package constants

// Node defaults
const (
	NodeTypeCustom  = "custom"
	EdgeTypeDefault = "default"

	RoleUser      = "user"
	RoleAssistant = "assistant"

	// DefaultModel is stamped on branch nodes when the source has none
	DefaultModel = "gemini-2.5-flash-lite"
)

// Branch placement, relative to the source node
const (
	HighlightOffsetX = 500.0
	HighlightOffsetY = 0.0
	FullOffsetX      = 300.0
	FullOffsetY      = 200.0

	FullBranchWidth  = 200.0
	FullBranchHeight = 150.0
	HighlightWidth   = 400.0

	HighlightBranchTitle = "New Branch"
)

// ID prefixes; ids are prefix + 8 hex characters
const (
	NodeIDPrefix = "node-"
	EdgeIDPrefix = "edge-"
)

// Relay
const (
	// RelayChannelPrefix namespaces the per-board pub/sub channels
	RelayChannelPrefix = "branchboard:room:"
)

// MaxLineageDepth bounds ancestor traversal when refreshing a whole lineage
const MaxLineageDepth = 64
