package mqtt

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/output"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "hx711-client"
	DefaultStateTopic = "hx711/weight"
	tareSuffix        = "/tare"
	errorSuffix       = "/error"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	keyIcon                = "icon"
	stateClassMeasurement  = "measurement"
	valueTemplateWeight    = "{{ value_json.value }}"
	iconScale              = "mdi:scale"
)

type MQTTOutput struct {
	client     mqtt.Client
	stateTopic string
}

func NewMQTT(cfg config.MQTTConfig) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID).SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return newWithClient(client, cfg), nil
}

// newWithClient publishes the Home Assistant discovery payload, if
// configured, and returns the output.
func newWithClient(client mqtt.Client, cfg config.MQTTConfig) *MQTTOutput {
	st := cfg.StateTopic
	if st == "" {
		st = DefaultStateTopic
	}
	m := &MQTTOutput{client: client, stateTopic: st}

	if cfg.DiscoveryTopic != "" {
		payload := baseDiscoveryPayload(discoveryName(cfg), st, discoveryUniqueID(cfg))
		if err := publishJSON(client, cfg.DiscoveryTopic, true, payload); err != nil {
			log.Printf("mqtt discovery publish error: %v", err)
		}
	}
	return m
}

// Publish sends weights to the state topic, the tare (retained) to
// <state>/tare and faults to <state>/error.
func (m *MQTTOutput) Publish(r output.Reading) error {
	topic := m.stateTopic
	retained := false
	switch r.Kind {
	case output.KindTare:
		topic += tareSuffix
		retained = true
	case output.KindFault:
		topic += errorSuffix
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return m.PublishRaw(topic, b, retained)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery messages.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

// helper: build a human-friendly discovery name
func discoveryName(cfg config.MQTTConfig) string {
	if cfg.DiscoveryName != "" {
		return cfg.DiscoveryName
	}
	return fmt.Sprintf("HX711 %s", cfg.ClientID)
}

// helper: build a unique id for discovery
func discoveryUniqueID(cfg config.MQTTConfig) string {
	if cfg.DiscoveryUniqueID != "" {
		return cfg.DiscoveryUniqueID
	}
	return cfg.ClientID
}

// helper: base discovery payload map. No unit is announced: weights are
// tare-relative raw counts.
func baseDiscoveryPayload(name, stateTopic, uniqueID string) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplateWeight,
		keyJSONAttributesTopic: stateTopic,
		keyIcon:                iconScale,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
