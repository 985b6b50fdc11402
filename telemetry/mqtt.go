package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jlarkin/scanaux/bridge"
	"github.com/jlarkin/scanaux/daq"
)

// topicRoot prefixes all published topics
const topicRoot = "scanaux/events/"

// Publisher mirrors bridge events onto an MQTT broker.  It satisfies
// bridge.Listener.  Publishes are fire and forget at QoS 0; a slow broker
// must never stall the acquisition path.
type Publisher struct {
	client mqtt.Client
}

type stateEvent struct {
	State string    `json:"state"`
	Time  time.Time `json:"time"`
}

type sessionEvent struct {
	Path string    `json:"path"`
	Time time.Time `json:"time"`
}

// NewPublisher connects to the broker at addr, e.g. "tcp://broker:1883"
func NewPublisher(addr string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(addr)
	opts.SetClientID(fmt.Sprintf("scanaux-%d", time.Now().Unix()))
	opts.SetAutoReconnect(true)
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Printf("mqtt connection lost: %v", err)
	}
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Publisher{client: client}, nil
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func (p *Publisher) publish(topic string, v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		return
	}
	p.client.Publish(topicRoot+topic, 0, false, buf)
}

// StateChanged publishes to scanaux/events/state
func (p *Publisher) StateChanged(s bridge.State) {
	p.publish("state", stateEvent{State: bridge.FormatState(s), Time: time.Now()})
}

// SessionOpened publishes to scanaux/events/session-opened
func (p *Publisher) SessionOpened(path string) {
	p.publish("session-opened", sessionEvent{Path: path, Time: time.Now()})
}

// SessionClosed publishes to scanaux/events/session-closed
func (p *Publisher) SessionClosed(path string) {
	p.publish("session-closed", sessionEvent{Path: path, Time: time.Now()})
}

// SampleBlock is a no-op; per-block publishes would flood the broker
func (p *Publisher) SampleBlock(b daq.Block) {}
