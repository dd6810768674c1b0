package statestore

import (
	"log"

	"github.com/nadmax/nexdag/internal/notify"
	"github.com/nadmax/nexdag/internal/task"
)

// DetailSource resolves the current detail of a task.
type DetailSource interface {
	Detail(id string) (task.Detail, error)
}

// Mirror is a notify listener that keeps the store in step with the engine.
// Redis errors are logged and never reach the engine.
type Mirror struct {
	store  *Store
	source DetailSource
}

func NewMirror(store *Store, source DetailSource) *Mirror {
	return &Mirror{store: store, source: source}
}

func (m *Mirror) OnStateChange(e notify.Event) {
	if err := m.store.PublishEvent(e); err != nil {
		log.Printf("Failed to publish event for task %s: %v", e.TaskID, err)
	}

	d, err := m.source.Detail(e.TaskID)
	if err != nil {
		log.Printf("Failed to load task %s for mirroring: %v", e.TaskID, err)
		return
	}
	if err := m.store.SaveDetail(d); err != nil {
		log.Printf("Failed to mirror task %s: %v", e.TaskID, err)
	}
}

func (m *Mirror) OnRunStarted(notify.RunInfo) {}

func (m *Mirror) OnRunFinished(report notify.RunReport) {
	if err := m.store.SaveRun(report); err != nil {
		log.Printf("Failed to store report of run %s: %v", report.RunID, err)
	}
}

// Sync replaces the mirrored details with details.
func (m *Mirror) Sync(details []task.Detail) error {
	if err := m.store.Clear(); err != nil {
		return err
	}
	for _, d := range details {
		if err := m.store.SaveDetail(d); err != nil {
			return err
		}
	}
	return nil
}
