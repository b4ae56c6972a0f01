package ingest

import (
	"context"
	"fmt"

	mqttcommon "wisefido-power/internal/common/mqtt"

	"go.uber.org/zap"
)

// Subscriber the part of the MQTT client the consumer needs
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer writes instantaneous power published on an MQTT topic into the
// reading store.
type MQTTConsumer struct {
	client Subscriber
	topic  string
	qos    byte
	store  ReadingWriter
	logger *zap.Logger
}

func NewMQTTConsumer(client Subscriber, topic string, qos byte, store ReadingWriter, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		client: client,
		topic:  topic,
		qos:    qos,
		store:  store,
		logger: logger,
	}
}

// Start subscribes and blocks until ctx is done
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.client.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to power topic: %w", err)
	}

	c.logger.Info("MQTT power consumer started", zap.String("topic", c.topic))

	<-ctx.Done()
	return nil
}

func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if err := c.client.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.String("topic", c.topic), zap.Error(err))
	}
	c.logger.Info("MQTT power consumer stopped")
	return nil
}

func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	raw, err := decodePayload(payload)
	if err != nil {
		c.logger.Warn("Dropping power message",
			zap.String("topic", topic),
			zap.Int("payload_size", len(payload)),
			zap.Error(err),
		)
		return err
	}

	if err := c.store.Write(context.Background(), raw); err != nil {
		return fmt.Errorf("failed to store reading: %w", err)
	}
	return nil
}
