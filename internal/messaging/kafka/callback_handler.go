package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
)

// CallbackProcessor сверяет уведомление платёжного шлюза.
type CallbackProcessor interface {
	HandleCallback(ctx context.Context, req payment.CallbackRequest) payment.CallbackResult
}

// NewCallbackHandler обрабатывает уведомления шлюза, пересланные через Kafka
// тем же кодом, что и HTTP callback. Неверная подпись и нечитаемое сообщение
// повторять бессмысленно: они помечаются как Permanent.
func NewCallbackHandler(processor CallbackProcessor, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "callback-consumer")
	}
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		var req payment.CallbackRequest
		if err := json.Unmarshal(message.Value, &req); err != nil {
			return Permanent(fmt.Errorf("decode relayed callback: %w", err))
		}

		result := processor.HandleCallback(ctx, req)
		switch result.ReturnCode {
		case payment.ReturnCodeSuccess:
			logger.WithField("offset", message.Offset).Debug("relayed callback processed")
			return nil
		case payment.ReturnCodeMACMismatch:
			return Permanent(fmt.Errorf("relayed callback rejected: %s", result.ReturnMessage))
		default:
			return fmt.Errorf("relayed callback failed: %s", result.ReturnMessage)
		}
	}
}
