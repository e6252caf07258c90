// Package systemd reports service state to systemd over the notify socket.
// Outside a Type=notify unit (no NOTIFY_SOCKET) every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "pdfbot/pkg/logx"
)

// Notifier sends sd_notify messages. The zero value is usable.
type Notifier struct {
	Log logx.Logger
}

func (n Notifier) send(state string) bool {
	ok, err := daemon.SdNotify(false, state)
	if err != nil && !n.Log.IsZero() {
		n.Log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
	return ok
}

// Ready tells systemd startup has finished.
func (n Notifier) Ready() bool { return n.send(daemon.SdNotifyReady) }

// Stopping tells systemd shutdown has begun.
func (n Notifier) Stopping() bool { return n.send(daemon.SdNotifyStopping) }

// Reloading marks a config reload; call Ready when it is applied.
func (n Notifier) Reloading() bool { return n.send(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func (n Notifier) Status(s string) bool { return n.send("STATUS=" + s) }

// Watchdog pings the service watchdog at half the configured interval until
// ctx ends. It returns at once when WatchdogSec is not set for the unit.
func (n Notifier) Watchdog(ctx context.Context) {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil || every <= 0 {
		return
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
