package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wisefido-power/internal/models"
)

var ErrInvalidPayload = errors.New("invalid power payload")

// ReadingWriter sink for raw instantaneous values
type ReadingWriter interface {
	Write(ctx context.Context, raw string) error
}

// meterMessage what the meter reader sends: {"time": epoch_s, "power": watts}
type meterMessage struct {
	Time  json.Number `json:"time"`
	Power json.Number `json:"power"`
}

// decodePayload accepts a bare number ("1500") or a meter message
func decodePayload(payload []byte) (string, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		var msg meterMessage
		if err := dec.Decode(&msg); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return validate(msg.Power.String())
	}
	return validate(string(payload))
}

func validate(raw string) (string, error) {
	if _, ok := models.ParseRawPower(raw); !ok {
		return "", fmt.Errorf("%w: %q is not a non-negative integer", ErrInvalidPayload, raw)
	}
	return raw, nil
}
