package wa

import (
	"context"
	"os"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/gfranca/leadflow/internal/session"
)

// AuthEventType enumerates auth event types.
type AuthEventType string

const (
	AuthEventQRCode        AuthEventType = "qr_code"
	AuthEventAuthenticated AuthEventType = "authenticated"
	AuthEventAuthFailed    AuthEventType = "auth_failed"
	AuthEventTimeout       AuthEventType = "timeout"
)

// AuthEvent represents an auth lifecycle event.
type AuthEvent struct {
	Type    AuthEventType
	QRCode  string
	Message string
}

// StartQRAuth begins the QR pairing flow. Each code is written as a PNG to
// the session directory so the operator can scan it without a terminal UI.
// Returns a channel of AuthEvents; the caller should read until it closes.
func (a *Adapter) StartQRAuth(ctx context.Context) (<-chan AuthEvent, error) {
	qrChan, err := a.GetQRChannel(ctx)
	if err != nil {
		return nil, err
	}

	qrPath := session.QRPath(a.session)
	out := make(chan AuthEvent, 10)

	go func() {
		defer close(out)
		defer os.Remove(qrPath)

		// Connect must be called after GetQRChannel.
		if err := a.Connect(); err != nil {
			out <- AuthEvent{Type: AuthEventAuthFailed, Message: err.Error()}
			return
		}

		for item := range qrChan {
			switch item.Event {
			case "code":
				if err := qrcode.WriteFile(item.Code, qrcode.Medium, 512, qrPath); err != nil {
					a.logger.Warn("write QR image", zap.Error(err))
				} else {
					a.logger.Info("pairing QR code written", zap.String("path", qrPath))
				}
				out <- AuthEvent{Type: AuthEventQRCode, QRCode: item.Code}
			case "success":
				a.logger.Info("pairing successful")
				out <- AuthEvent{Type: AuthEventAuthenticated, Message: "authenticated"}
				return
			case "timeout":
				a.logger.Warn("pairing QR code expired")
				out <- AuthEvent{Type: AuthEventTimeout, Message: "QR code timeout"}
				return
			default:
				if item.Error != nil {
					a.logger.Error("pairing failed", zap.Error(item.Error))
					out <- AuthEvent{Type: AuthEventAuthFailed, Message: item.Error.Error()}
					return
				}
			}
		}
	}()

	return out, nil
}
