package enum

// ── Live update topics (one websocket room each) ──

const (
	TopicOrders  = "orders"
	TopicArchive = "archive"
)

// IsTopic reports whether s names a known topic.
func IsTopic(s string) bool {
	switch s {
	case TopicOrders, TopicArchive:
		return true
	}
	return false
}

// ── Event types ──

const (
	EventOrdersChanged  = "orders.changed"
	EventArchiveChanged = "archive.changed"
)

// ── Change actions carried in event payloads ──

const (
	ActionAdded     = "added"
	ActionUpdated   = "updated"
	ActionDeleted   = "deleted"
	ActionCleared   = "cleared"
	ActionFinalized = "finalized"
)
