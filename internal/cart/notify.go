package cart

import (
	"errors"

	"go.uber.org/zap"
)

const (
	MsgOutOfStock    = "Requested amount is out of stock"
	MsgAddFailed     = "Failed to add product"
	MsgRemoveFailed  = "Failed to remove product"
	MsgUpdateFailed  = "Failed to update product amount"
	MsgNotConfigured = "Cart is not available"
)

// Notification is a user-facing message emitted when an operation is
// rejected. Err is the cause, for logging only.
type Notification struct {
	Op        string
	ProductID int
	Message   string
	Err       error
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier surfaces notifications as log lines. It is the default when no
// UI is attached.
type LogNotifier struct {
	Log *zap.Logger
}

func (l LogNotifier) Notify(n Notification) {
	if l.Log == nil {
		return
	}
	l.Log.Info("cart notification",
		zap.String("op", n.Op),
		zap.Int("product_id", n.ProductID),
		zap.String("message", n.Message),
		zap.Error(n.Err),
	)
}

// Message returns the text shown to the user for an error returned by one of
// the Manager operations.
func Message(op string, err error) string {
	switch {
	case errors.Is(err, ErrOutOfStock):
		return MsgOutOfStock
	case errors.Is(err, ErrNotInitialized):
		return MsgNotConfigured
	}
	switch op {
	case OpAdd:
		return MsgAddFailed
	case OpRemove:
		return MsgRemoveFailed
	case OpUpdate:
		return MsgUpdateFailed
	}
	return err.Error()
}
