package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-workspaces/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultActivityPerPage = 25
	maxActivityPerPage     = 500
)

type RetentionPolicy struct {
	TTL    time.Duration
	RowCap int
}

// WatchActivityStore records subscribe, unsubscribe, teardown and creation
// outcomes. Metadata is redacted before it is written.
type WatchActivityStore struct {
	db   *bun.DB
	repo repository.Repository[*watchActivityRecord]
	now  func() time.Time
}

func NewWatchActivityStore(db *bun.DB) (*WatchActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*watchActivityRecord](db, watchActivityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid watch activity repository wiring: %w", err)
		}
	}
	return &WatchActivityStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *WatchActivityStore) Record(ctx context.Context, entry core.ActivityEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: watch activity store is not configured")
	}
	action := strings.TrimSpace(string(entry.Action))
	if action == "" {
		return core.NewBadInput("sqlstore: activity action is required")
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt.UTC()
	if entry.CreatedAt.IsZero() {
		createdAt = s.now()
	}

	record := &watchActivityRecord{
		ID:        id,
		Action:    action,
		Namespace: strings.TrimSpace(entry.Namespace),
		SinkID:    strings.TrimSpace(entry.SinkID),
		Resource:  strings.TrimSpace(entry.Resource),
		Status:    strings.TrimSpace(entry.Status),
		Message:   entry.Message,
		Metadata:  core.RedactSensitiveMap(entry.Metadata),
		CreatedAt: createdAt,
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *WatchActivityStore) List(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
	if s == nil || s.repo == nil {
		return core.ActivityPage{}, fmt.Errorf("sqlstore: watch activity store is not configured")
	}
	page, perPage := normalizePaging(filter)
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if namespace := strings.TrimSpace(filter.Namespace); namespace != "" {
		selectors = append(selectors, repository.SelectBy("namespace", "=", namespace))
	}
	if action := strings.TrimSpace(string(filter.Action)); action != "" {
		selectors = append(selectors, repository.SelectBy("action", "=", action))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.ActivityPage{}, err
	}
	items := make([]core.ActivityEntry, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.ActivityPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasNext: offset+len(items) < total,
	}, nil
}

// Prune applies the TTL first and then trims the oldest rows above RowCap.
func (s *WatchActivityStore) Prune(ctx context.Context, policy RetentionPolicy) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: watch activity store is not configured")
	}
	deleted := 0

	if policy.TTL > 0 {
		cutoff := s.now().Add(-policy.TTL)
		res, err := s.db.NewDelete().
			Model((*watchActivityRecord)(nil)).
			Where("created_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return deleted, err
		}
		affected, _ := res.RowsAffected()
		deleted += int(affected)
	}

	if policy.RowCap > 0 {
		total, err := s.db.NewSelect().Model((*watchActivityRecord)(nil)).Count(ctx)
		if err != nil {
			return deleted, err
		}
		excess := total - policy.RowCap
		if excess > 0 {
			res, err := s.db.NewRaw(
				"DELETE FROM workspace_watch_activity WHERE id IN (SELECT id FROM workspace_watch_activity ORDER BY created_at ASC LIMIT ?)",
				excess,
			).Exec(ctx)
			if err != nil {
				return deleted, err
			}
			affected, _ := res.RowsAffected()
			deleted += int(affected)
		}
	}
	return deleted, nil
}

func (r *watchActivityRecord) toDomain() core.ActivityEntry {
	if r == nil {
		return core.ActivityEntry{}
	}
	return core.ActivityEntry{
		ID:        r.ID,
		Action:    core.ActivityAction(r.Action),
		Namespace: r.Namespace,
		SinkID:    r.SinkID,
		Resource:  r.Resource,
		Status:    r.Status,
		Message:   r.Message,
		Metadata:  copyAnyMap(r.Metadata),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func normalizePaging(filter core.ActivityFilter) (int, int) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultActivityPerPage
	}
	if perPage > maxActivityPerPage {
		perPage = maxActivityPerPage
	}
	return page, perPage
}

func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.ActivityRecorder = (*WatchActivityStore)(nil)
	_ core.ActivityReader   = (*WatchActivityStore)(nil)
)
