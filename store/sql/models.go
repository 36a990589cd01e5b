package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type watchActivityRecord struct {
	bun.BaseModel `bun:"table:workspace_watch_activity,alias:wwa"`

	ID        string         `bun:"id,pk"`
	Action    string         `bun:"action,notnull"`
	Namespace string         `bun:"namespace,notnull"`
	SinkID    string         `bun:"sink_id,notnull"`
	Resource  string         `bun:"resource,notnull"`
	Status    string         `bun:"status,notnull"`
	Message   string         `bun:"message,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
