package kube

import (
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-workspaces/core"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/watch"
)

// watcher adapts a client-go watch stream to core.Watcher. The events
// channel closes when the upstream stream ends or Stop is called.
type watcher struct {
	upstream  watch.Interface
	namespace string
	now       func() time.Time
	events    chan core.WatchEvent
	done      chan struct{}
	stopOnce  sync.Once
}

func newWatcher(upstream watch.Interface, namespace string, now func() time.Time) *watcher {
	w := &watcher{
		upstream:  upstream,
		namespace: namespace,
		now:       now,
		events:    make(chan core.WatchEvent),
		done:      make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *watcher) Events() <-chan core.WatchEvent {
	return w.events
}

func (w *watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.upstream.Stop()
	})
}

func (w *watcher) run() {
	defer close(w.events)
	results := w.upstream.ResultChan()
	for {
		select {
		case <-w.done:
			return
		case raw, ok := <-results:
			if !ok {
				return
			}
			if raw.Type == watch.Bookmark {
				continue
			}
			select {
			case w.events <- w.translate(raw):
			case <-w.done:
				return
			}
		}
	}
}

// translate never drops a data event; objects that are not workspace
// documents reach the tracker with an empty resource and are rejected there.
func (w *watcher) translate(raw watch.Event) core.WatchEvent {
	if raw.Type == watch.Error {
		return core.WatchEvent{
			Type: core.WatchEventError,
			Err:  mapError(watchStatusError(raw), w.namespace, ""),
		}
	}
	event := core.WatchEvent{Type: core.WatchEventType(raw.Type)}
	if obj, ok := raw.Object.(*unstructured.Unstructured); ok {
		event.Resource = ToResource(obj, w.now())
	}
	return event
}

func watchStatusError(raw watch.Event) error {
	if raw.Object == nil {
		return fmt.Errorf("kube: watch error event without status")
	}
	return apierrors.FromObject(raw.Object)
}

var _ core.Watcher = (*watcher)(nil)
