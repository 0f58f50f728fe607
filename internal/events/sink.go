package events

import (
	"context"
	"time"

	"github.com/jobctl/jobmaster/internal/jobstate"
	"github.com/jobctl/jobmaster/internal/logger"
)

// Sink adapts a RedisPubSub into the job master's EventSink interface
// (satisfied structurally; this package never imports internal/jobmaster to
// avoid a dependency cycle, since jobmaster is the thing that constructs
// Sink and publishes through it).
type Sink struct {
	publisher *RedisPubSub
}

// NewSink wraps publisher as an EventSink. A nil publisher is valid: every
// method becomes a no-op, matching the job master's "observability is
// optional" contract.
func NewSink(publisher *RedisPubSub) *Sink {
	return &Sink{publisher: publisher}
}

func (s *Sink) publish(eventType EventType, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, NewEvent(eventType, data)); err != nil {
		logger.Get().Debug().Err(err).Str("event_type", string(eventType)).Msg("event publish failed")
	}
}

func (s *Sink) PlanAdmitted(planID int64, name string) {
	s.publish(EventPlanAdmitted, PlanEventData(planID, name, nil))
}

func (s *Sink) PlanDenied(name string, reason error) {
	s.publish(EventPlanDenied, PlanEventData(0, name, map[string]interface{}{"reason": reason.Error()}))
}

func (s *Sink) PlanStateChanged(planID int64, from, to jobstate.State) {
	s.publish(EventPlanStateChanged, PlanEventData(planID, "", map[string]interface{}{
		"from": from.String(),
		"to":   to.String(),
	}))
}

func (s *Sink) WorkerRegistered(workerID int64, host string) {
	s.publish(EventWorkerRegistered, WorkerEventData(workerID, map[string]interface{}{"host": host}))
}

func (s *Sink) WorkerEvicted(workerID int64, reason string) {
	s.publish(EventWorkerEvicted, WorkerEventData(workerID, map[string]interface{}{"reason": reason}))
}

func (s *Sink) WorkerLost(workerID int64) {
	s.publish(EventWorkerLost, WorkerEventData(workerID, nil))
}

func (s *Sink) CommandEnqueued(workerID int64, kind string) {
	s.publish(EventCommandEnqueued, WorkerEventData(workerID, map[string]interface{}{"kind": kind}))
}
