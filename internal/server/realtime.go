package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventReplicaChanged = "replica-change"
	realtimeEventHeartbeat      = "heartbeat"
	realtimeSourceReplica       = "replica-sync"
	defaultHeartbeatInterval    = 15 * time.Second
)

// RealtimeMessage tells a connection's listeners which collections changed.
type RealtimeMessage struct {
	Connection string
	EventType  string
	Tables     []string
	Timestamp  time.Time
}

// RealtimeDispatcher fans replica change notifications out to the listeners
// of one connection. Slow listeners drop messages rather than block writers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a listener for connection until ctx ends or the
// returned cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, connection string) (<-chan RealtimeMessage, func()) {
	if connection == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := d.register(connection)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(connection, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.Connection == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, subscriber := range d.subscribers[message.Connection] {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// Disconnect closes every listener stream of connection.
func (d *RealtimeDispatcher) Disconnect(connection string) {
	d.mu.Lock()
	subscribers := d.subscribers[connection]
	delete(d.subscribers, connection)
	d.mu.Unlock()
	for _, subscriber := range subscribers {
		close(subscriber.stream)
	}
}

func (d *RealtimeDispatcher) register(connection string) *realtimeSubscriber {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber := &realtimeSubscriber{
		id:     d.nextID,
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	listeners, ok := d.subscribers[connection]
	if !ok {
		listeners = make(map[int64]*realtimeSubscriber)
		d.subscribers[connection] = listeners
	}
	listeners[subscriber.id] = subscriber
	return subscriber
}

func (d *RealtimeDispatcher) unregister(connection string, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	listeners := d.subscribers[connection]
	delete(listeners, subscriberID)
	if len(listeners) == 0 {
		delete(d.subscribers, connection)
	}
}
