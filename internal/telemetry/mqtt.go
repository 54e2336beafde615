// Package telemetry publishes client activity over MQTT: connection
// lifecycle, submissions, balance changes, and automation milestones.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/gameeflow-project/gameeflow/internal/config"
	"github.com/gameeflow-project/gameeflow/internal/events"
	"github.com/gameeflow-project/gameeflow/internal/util"
)

// MQTT topic prefixes
const (
	TopicClientAdmin      = "client/admin"
	TopicClientConnection = "client/connection"
	TopicClientBalance    = "client/balance"
	TopicGameSubmission   = "game/submission"
	TopicGameAutomation   = "game/automation"
)

// MQTTHandler manages the MQTT connection and publishes telemetry events.
type MQTTHandler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	client   mqtt.Client

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a new MQTT telemetry handler.
func NewMQTTHandler(cfg *config.Config, eventBus *events.EventBus) (*MQTTHandler, error) {
	mqttCfg := cfg.GetApplicationData().MQTT

	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	// Build system metadata
	sysInfo := util.GetSystemInfo()
	metadata := map[string]interface{}{
		"hostname":    sysInfo.Hostname,
		"platform":    sysInfo.Platform,
		"cpu_model":   sysInfo.CPUModel,
		"cpu_cores":   sysInfo.CPUCores,
		"memory_mb":   sysInfo.TotalMemory,
		"app_version": "1.0.0",
	}

	handler := &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		metadata: metadata,
	}

	// Configure MQTT client
	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if mqttCfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, mqttCfg.BrokerURL, mqttCfg.Port))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("gameeflow-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	// TLS configuration
	if mqttCfg.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		if mqttCfg.CAFile != "" {
			caPEM, err := os.ReadFile(mqttCfg.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no certificates found in MQTT CA file %s", mqttCfg.CAFile)
			}
			tlsConfig.RootCAs = pool
		}

		// mTLS: load client certificate
		if mqttCfg.CertFile != "" && mqttCfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(mqttCfg.CertFile, mqttCfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}

		opts.SetTLSConfig(tlsConfig)
	}

	// Connection callbacks
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)

	return handler, nil
}

// Start connects to the MQTT broker and subscribes to events.
func (h *MQTTHandler) Start(ctx context.Context) error {
	mqttCfg := h.cfg.GetApplicationData().MQTT
	log.Info().
		Str("broker", mqttCfg.BrokerURL).
		Int("port", mqttCfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	// Subscribe to EventBus events for publishing
	h.subscribeEvents()

	// Block until context cancelled
	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")

	return nil
}

// subscribeEvents registers event handlers for MQTT publishing.
func (h *MQTTHandler) subscribeEvents() {
	h.eventBus.Subscribe(events.EventConnected, "mqtt.connected", h.onConnected)
	h.eventBus.Subscribe(events.EventDisconnected, "mqtt.disconnected", h.onDisconnected)
	h.eventBus.Subscribe(events.EventAuthenticated, "mqtt.authenticated", h.onAuthenticated)
	h.eventBus.Subscribe(events.EventProfileUpdated, "mqtt.profileUpdated", h.onProfileUpdated)
	h.eventBus.Subscribe(events.EventScoreSubmitted, "mqtt.scoreSubmitted", h.onScoreSubmitted)
	h.eventBus.Subscribe(events.EventScoreRejected, "mqtt.scoreRejected", h.onScoreRejected)
	h.eventBus.Subscribe(events.EventRoundReset, "mqtt.roundReset", h.onRoundReset)
	h.eventBus.Subscribe(events.EventEndlessStarted, "mqtt.endlessStarted", h.onEndlessStarted)
	h.eventBus.Subscribe(events.EventEndlessStopped, "mqtt.endlessStopped", h.onEndlessStopped)
	h.eventBus.Subscribe(events.EventTargetReached, "mqtt.targetReached", h.onTargetReached)
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	// Merge metadata with payload
	msg := h.buildMessage(payload)

	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{})

	// Add metadata
	for k, v := range h.metadata {
		msg[k] = v
	}

	// Add payload
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	return msg
}

// Event handlers

func (h *MQTTHandler) onConnected(ctx context.Context, event events.Event) error {
	h.publish(TopicClientConnection, map[string]interface{}{"event": "connected"})
	return nil
}

func (h *MQTTHandler) onDisconnected(ctx context.Context, event events.Event) error {
	msg := map[string]interface{}{"event": "disconnected"}
	if err, ok := event.Payload.(error); ok && err != nil {
		msg["reason"] = err.Error()
	}
	h.publish(TopicClientConnection, msg)
	return nil
}

func (h *MQTTHandler) onAuthenticated(ctx context.Context, event events.Event) error {
	h.publish(TopicClientConnection, map[string]interface{}{
		"event":   "authenticated",
		"payload": event.Payload,
	})
	return nil
}

func (h *MQTTHandler) onProfileUpdated(ctx context.Context, event events.Event) error {
	h.publish(TopicClientBalance, event.Payload)
	return nil
}

func (h *MQTTHandler) onScoreSubmitted(ctx context.Context, event events.Event) error {
	h.publish(TopicGameSubmission, map[string]interface{}{
		"event":   "accepted",
		"payload": event.Payload,
	})
	return nil
}

func (h *MQTTHandler) onScoreRejected(ctx context.Context, event events.Event) error {
	h.publish(TopicGameSubmission, map[string]interface{}{
		"event":   "rejected",
		"payload": event.Payload,
	})
	return nil
}

func (h *MQTTHandler) onRoundReset(ctx context.Context, event events.Event) error {
	h.publish(TopicGameSubmission, map[string]interface{}{"event": "round_reset"})
	return nil
}

func (h *MQTTHandler) onEndlessStarted(ctx context.Context, event events.Event) error {
	h.publish(TopicGameAutomation, map[string]interface{}{"event": "endless_started"})
	return nil
}

func (h *MQTTHandler) onEndlessStopped(ctx context.Context, event events.Event) error {
	h.publish(TopicGameAutomation, map[string]interface{}{"event": "endless_stopped"})
	return nil
}

func (h *MQTTHandler) onTargetReached(ctx context.Context, event events.Event) error {
	h.publish(TopicGameAutomation, map[string]interface{}{
		"event":   "target_reached",
		"payload": event.Payload,
	})
	return nil
}

// PublishShutdown sends a shutdown message to the MQTT broker.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(TopicClientAdmin, map[string]interface{}{
		"event":     "shutdown",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
