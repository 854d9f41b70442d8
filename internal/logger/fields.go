package logger

import "go.uber.org/zap"

func CustomerID(id uint) zap.Field {
	return zap.Uint("customer_id", id)
}

func OrderID(id string) zap.Field {
	return zap.String("order_id", id)
}
