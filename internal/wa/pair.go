package wa

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/wppdesk/internal/chat"
	"go.mau.fi/whatsmeow"
	"go.uber.org/zap"
)

// pair runs the QR login flow. QR codes and the optional phone pairing code
// are reported through the option callbacks. It returns once the new device
// is logged in.
func (c *Client) pair(ctx context.Context, opts chat.Options) error {
	qrChan, err := c.wm.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get QR channel: %w", err)
	}

	// Connect must be called after GetQRChannel.
	if err := c.wm.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if opts.PairPhone != "" {
		code, err := c.wm.PairPhone(ctx, opts.PairPhone, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
		if err != nil {
			c.logger.Warn("phone pairing code request failed", zap.Error(err))
		} else if opts.OnPairCode != nil {
			opts.OnPairCode(code)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("pairing: %w", ctx.Err())
		case item, ok := <-qrChan:
			if !ok {
				return errors.New("pairing: QR channel closed")
			}
			switch item.Event {
			case "code":
				if opts.OnQR != nil {
					opts.OnQR(item.Code)
				}
			case "success":
				c.logger.Info("pairing succeeded")
				return c.waitReady(ctx)
			case "timeout":
				return errors.New("pairing: QR code timeout")
			default:
				if item.Error != nil {
					return fmt.Errorf("pairing: %w", item.Error)
				}
				return fmt.Errorf("pairing failed: %s", item.Event)
			}
		}
	}
}
