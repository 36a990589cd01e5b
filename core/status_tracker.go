package core

import (
	"strings"
	"sync"
)

const (
	StatusDeleted  = "DELETED"
	StatusDeleting = "DELETING"
)

type snapshotKey struct {
	Group      string
	ResourceID string
}

// StatusDiffTracker turns raw resource phases into transition records. It is
// the only owner of the last-seen phase per (group, resource) pair.
type StatusDiffTracker struct {
	mu        sync.Mutex
	snapshots map[snapshotKey]string
	// aliases maps (group, resource name) to the workspace id once the
	// upstream has published one.
	aliases map[snapshotKey]string
}

func NewStatusDiffTracker() *StatusDiffTracker {
	return &StatusDiffTracker{
		snapshots: make(map[snapshotKey]string),
		aliases:   make(map[snapshotKey]string),
	}
}

// Diff records rawPhase for (group, resourceID) and returns the transition
// from the previous snapshot. The first observation of a key reports
// prevStatus equal to status.
func (t *StatusDiffTracker) Diff(group, resourceID, rawPhase string) TransitionRecord {
	status := normalizePhase(rawPhase)
	key := snapshotKey{Group: group, ResourceID: resourceID}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureMaps()
	prev, seen := t.snapshots[key]
	if !seen {
		prev = status
	}
	t.snapshots[key] = status

	return TransitionRecord{
		ResourceID: resourceID,
		Status:     status,
		PrevStatus: prev,
	}
}

// Observe applies the deletion overrides before diffing: a removal event is
// always DELETED and a resource carrying a deletion marker is DELETING,
// whatever its own phase says.
func (t *StatusDiffTracker) Observe(group string, event WatchEvent) (TransitionRecord, error) {
	resource := event.Resource
	resourceID := t.trackingKey(group, resource)
	if resourceID == "" {
		return TransitionRecord{}, NewMalformedEvent(group, "resource id is missing")
	}

	phase := resource.Phase
	switch event.Type {
	case WatchEventDeleted:
		phase = StatusDeleted
	case WatchEventAdded, WatchEventModified:
		if resource.Deleting {
			phase = StatusDeleting
		}
	default:
		return TransitionRecord{}, NewMalformedEvent(group, "unknown event type "+string(event.Type))
	}
	if strings.TrimSpace(phase) == "" {
		return TransitionRecord{}, NewMalformedEvent(group, "status phase is missing for "+resourceID)
	}
	record := t.Diff(group, resourceID, phase)
	if event.Type == WatchEventDeleted {
		t.dropAlias(group, resource.Name)
	}
	return record, nil
}

// trackingKey resolves the snapshot key for resource. A workspace is tracked
// under its name until the upstream assigns an id; the name snapshot then
// moves to the id so the transition chain continues across the switch.
func (t *StatusDiffTracker) trackingKey(group string, resource Resource) string {
	id := strings.TrimSpace(resource.ID)
	name := strings.TrimSpace(resource.Name)
	if name == "" || name == id {
		return strings.TrimSpace(resource.ResourceKey())
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureMaps()
	nameKey := snapshotKey{Group: group, ResourceID: name}
	if id == "" {
		if alias, ok := t.aliases[nameKey]; ok {
			return alias
		}
		return name
	}
	t.aliases[nameKey] = id
	if prev, ok := t.snapshots[nameKey]; ok {
		idKey := snapshotKey{Group: group, ResourceID: id}
		if _, exists := t.snapshots[idKey]; !exists {
			t.snapshots[idKey] = prev
		}
		delete(t.snapshots, nameKey)
	}
	return id
}

func (t *StatusDiffTracker) dropAlias(group, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.aliases, snapshotKey{Group: group, ResourceID: name})
}

func (t *StatusDiffTracker) ensureMaps() {
	if t.snapshots == nil {
		t.snapshots = make(map[snapshotKey]string)
	}
	if t.aliases == nil {
		t.aliases = make(map[snapshotKey]string)
	}
}

func (t *StatusDiffTracker) Forget(group string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.snapshots {
		if key.Group == group {
			delete(t.snapshots, key)
		}
	}
	for key := range t.aliases {
		if key.Group == group {
			delete(t.aliases, key)
		}
	}
}

func (t *StatusDiffTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.snapshots)
}

func normalizePhase(phase string) string {
	return strings.ToUpper(strings.TrimSpace(phase))
}
