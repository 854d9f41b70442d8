package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestForComponent(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	originalLog := log
	log = zap.New(core)
	defer func() { log = originalLog }()

	ctx := WithRequestID(context.Background(), "req-1")
	ForComponent(ctx, "service", "Transition").Info("transition applied",
		CustomerID(7),
		OrderID("ord-1"),
	)

	logs := observed.TakeAll()
	if assert.Len(t, logs, 1) {
		fields := logs[0].ContextMap()
		assert.Equal(t, "service", fields["layer"])
		assert.Equal(t, "Transition", fields["method"])
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, uint64(7), fields["customer_id"])
		assert.Equal(t, "ord-1", fields["order_id"])
	}
}
