package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"device-hub-server/internal/domain"
	"device-hub-server/internal/metrics"
	"device-hub-server/internal/mqtt"
)

const defaultQueueSize = 256

// Publisher is the subset of the MQTT client the notifier needs.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

// statusMessage is the retained payload on <prefix>/devices/<id>/status.
type statusMessage struct {
	DeviceID     string              `json:"device_id"`
	OwnerID      string              `json:"owner_id"`
	Status       domain.DeviceStatus `json:"status"`
	LastActiveAt *time.Time          `json:"last_active_at"`
	Reason       string              `json:"reason"`
	Timestamp    time.Time           `json:"timestamp"`
}

// MQTTNotifier publishes status events from a single worker so per-device
// retained messages keep their order. Events are dropped when the queue is
// full; the next event for the device overwrites the retained state anyway.
type MQTTNotifier struct {
	pub    Publisher
	topics mqtt.Topics
	log    logrus.FieldLogger
	queue  chan *domain.StatusEvent

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

func NewMQTT(pub Publisher, topics mqtt.Topics, log logrus.FieldLogger) *MQTTNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	n := &MQTTNotifier{
		pub:     pub,
		topics:  topics,
		log:     log,
		queue:   make(chan *domain.StatusEvent, defaultQueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *MQTTNotifier) Notify(_ context.Context, event *domain.StatusEvent) {
	select {
	case <-n.done:
		return
	default:
	}

	select {
	case n.queue <- event:
	default:
		n.log.WithField("device_id", event.DeviceID).Warn("mqtt status queue full, dropping event")
		metrics.StatusEventsPublishedTotal.WithLabelValues("mqtt", metrics.ResultSkipped).Inc()
	}
}

func (n *MQTTNotifier) run() {
	defer close(n.stopped)
	for {
		select {
		case event := <-n.queue:
			n.publish(event)
		case <-n.done:
			// Flush what is already queued.
			for {
				select {
				case event := <-n.queue:
					n.publish(event)
				default:
					return
				}
			}
		}
	}
}

func (n *MQTTNotifier) publish(event *domain.StatusEvent) {
	payload, err := json.Marshal(statusMessage{
		DeviceID:     event.DeviceID,
		OwnerID:      event.OwnerID,
		Status:       event.Status,
		LastActiveAt: event.LastActiveAt,
		Reason:       event.Reason,
		Timestamp:    event.Timestamp,
	})
	if err != nil {
		n.log.WithError(err).Error("failed to encode mqtt status message")
		metrics.StatusEventsPublishedTotal.WithLabelValues("mqtt", metrics.ResultError).Inc()
		return
	}

	// A deleted device clears its retained message.
	if event.Reason == domain.ReasonDeleted {
		payload = []byte{}
	}

	topic := n.topics.DeviceStatus(event.DeviceID)
	if err := n.pub.PublishRetained(topic, payload); err != nil {
		n.log.WithError(err).WithField("topic", topic).Warn("failed to publish device status")
		metrics.StatusEventsPublishedTotal.WithLabelValues("mqtt", metrics.ResultError).Inc()
		return
	}

	metrics.StatusEventsPublishedTotal.WithLabelValues("mqtt", metrics.ResultSuccess).Inc()
}

// Close stops accepting events and returns once the ones already queued
// have been published.
func (n *MQTTNotifier) Close() {
	n.closeOnce.Do(func() {
		close(n.done)
	})
	<-n.stopped
}
