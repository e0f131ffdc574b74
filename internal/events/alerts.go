package events

import "log/slog"

// Alerts is the user-notification sink. Alerts are logged and published on
// the bus so connected UIs can show them.
type Alerts struct {
	bus    *Bus
	logger *slog.Logger
}

// NewAlerts returns an Alerts publishing on bus.
func NewAlerts(bus *Bus, logger *slog.Logger) *Alerts {
	return &Alerts{bus: bus, logger: logger}
}

// Fatal reports a state the engine cannot reconcile by itself; the user has to
// reload or repair manually.
func (a *Alerts) Fatal(msg string, err error) {
	a.logger.Error("alert: "+msg, slog.String("error", errString(err)))
	a.bus.Publish(Event{Type: AlertFatal, Data: AlertPayload{Message: msg, Error: errString(err)}})
}

// Warn reports a recoverable problem.
func (a *Alerts) Warn(msg string, err error) {
	a.logger.Warn("alert: "+msg, slog.String("error", errString(err)))
	a.bus.Publish(Event{Type: AlertWarning, Data: AlertPayload{Message: msg, Error: errString(err)}})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
