// Package statestore mirrors task state and engine events into Redis so other
// processes can follow a run.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nadmax/nexdag/internal/notify"
	"github.com/nadmax/nexdag/internal/task"
	"github.com/redis/go-redis/v9"
)

const (
	tasksKey        = "nexdag:tasks"
	runsKey         = "nexdag:runs"
	recentEventsKey = "nexdag:events:recent"

	// EventsChannel is the pub/sub channel every event is published on.
	EventsChannel = "nexdag:events"

	DefaultEventLogSize = 1000
)

var ErrNotFound = errors.New("not found in state store")

type Store struct {
	client       *redis.Client
	ctx          context.Context
	eventLogSize int64
}

func NewStore(redisAddr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:       client,
		ctx:          ctx,
		eventLogSize: DefaultEventLogSize,
	}, nil
}

// SetEventLogSize bounds the recent event list. Values below one are ignored.
func (s *Store) SetEventLogSize(n int64) {
	if n > 0 {
		s.eventLogSize = n
	}
}

func (s *Store) SaveDetail(d task.Detail) error {
	detailJSON, err := d.ToJSON()
	if err != nil {
		return err
	}
	return s.client.HSet(s.ctx, tasksKey, d.ID, detailJSON).Err()
}

func (s *Store) GetDetail(taskID string) (*task.Detail, error) {
	detailJSON, err := s.client.HGet(s.ctx, tasksKey, taskID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return task.DetailFromJSON(detailJSON)
}

func (s *Store) GetAllDetails() ([]*task.Detail, error) {
	detailMap, err := s.client.HGetAll(s.ctx, tasksKey).Result()
	if err != nil {
		return nil, err
	}

	details := make([]*task.Detail, 0, len(detailMap))
	for _, detailJSON := range detailMap {
		d, err := task.DetailFromJSON(detailJSON)
		if err != nil {
			continue
		}
		details = append(details, d)
	}

	return details, nil
}

func (s *Store) DeleteDetail(taskID string) error {
	return s.client.HDel(s.ctx, tasksKey, taskID).Err()
}

// Clear drops every mirrored detail. Run reports and the event log are kept.
func (s *Store) Clear() error {
	return s.client.Del(s.ctx, tasksKey).Err()
}

// PublishEvent publishes e and prepends it to the bounded recent event log.
func (s *Store) PublishEvent(e notify.Event) error {
	eventJSON, err := json.Marshal(e)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Publish(s.ctx, EventsChannel, eventJSON)
	pipe.LPush(s.ctx, recentEventsKey, eventJSON)
	pipe.LTrim(s.ctx, recentEventsKey, 0, s.eventLogSize-1)
	_, err = pipe.Exec(s.ctx)
	return err
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(limit int64) ([]notify.Event, error) {
	if limit <= 0 {
		limit = s.eventLogSize
	}

	raw, err := s.client.LRange(s.ctx, recentEventsKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	events := make([]notify.Event, 0, len(raw))
	for _, item := range raw {
		var e notify.Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		events = append(events, e)
	}

	return events, nil
}

func (s *Store) SaveRun(report notify.RunReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return s.client.HSet(s.ctx, runsKey, report.RunID, reportJSON).Err()
}

func (s *Store) GetRun(runID string) (*notify.RunReport, error) {
	reportJSON, err := s.client.HGet(s.ctx, runsKey, runID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var report notify.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Subscribe streams published events until ctx is done.
func (s *Store) Subscribe(ctx context.Context) <-chan notify.Event {
	pubsub := s.client.Subscribe(ctx, EventsChannel)
	out := make(chan notify.Event)

	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e notify.Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func (s *Store) Close() error {
	return s.client.Close()
}
