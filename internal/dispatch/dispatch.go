// Package dispatch delivers fired alarms.
//
// Both trigger paths, the clock poller and the platform wake callback, end
// in Dispatch. The alarm is claimed through the store's compare-and-transition
// before anything user-visible happens, so whichever path wins delivers and
// the other is absorbed as a no-op.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/fentz26/timereports/internal/audit"
	"github.com/fentz26/timereports/internal/events"
	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/observability"
	"github.com/fentz26/timereports/internal/platform"
)

// Trigger names the path that asked for delivery.
type Trigger string

const (
	TriggerPoller   Trigger = "poller"
	TriggerPlatform Trigger = "platform"
	TriggerManual   Trigger = "manual"
)

// Default notification templates, rendered with the fired alarm.
const (
	DefaultTitle = "Report alarm"
	DefaultBody  = "Time to send the {{.Time}} report."
)

// AlarmStore is the slice of the alarm store the dispatcher needs.
type AlarmStore interface {
	MarkFired(ctx context.Context, id string) (models.Alarm, bool, error)
}

// Canceller removes lingering platform registrations.
type Canceller interface {
	Cancel(ctx context.Context, id string) error
}

// Result describes one Dispatch call.
type Result struct {
	Alarm   *models.Alarm `json:"alarm,omitempty"`
	Fired   bool          `json:"fired"`
	Trigger Trigger       `json:"trigger"`
	// DeliveryError is set when the alarm was claimed but delivery failed.
	DeliveryError string `json:"delivery_error,omitempty"`
}

// Config holds the collaborators of a Dispatcher. Only the store is required.
type Config struct {
	Notifier      platform.Notifier
	Player        platform.SoundPlayer
	SoundAsset    string
	TitleTemplate string
	BodyTemplate  string
	Events        events.Publisher
	Audit         *audit.PDRWriter
	Logger        *slog.Logger
	Metrics       *observability.Metrics
	// WakeTimeout bounds a dispatch started by a platform wake.
	WakeTimeout time.Duration
}

// Dispatcher claims and delivers alarms.
type Dispatcher struct {
	store     AlarmStore
	canceller Canceller
	notifier  platform.Notifier
	player    platform.SoundPlayer
	asset     string
	title     *template.Template
	body      *template.Template
	events    events.Publisher
	audit     *audit.PDRWriter
	logger    *slog.Logger
	metrics   *observability.Metrics
	timeout   time.Duration
}

// New builds a dispatcher. It fails only on unparsable templates.
func New(store AlarmStore, canceller Canceller, cfg Config) (*Dispatcher, error) {
	if cfg.TitleTemplate == "" {
		cfg.TitleTemplate = DefaultTitle
	}
	if cfg.BodyTemplate == "" {
		cfg.BodyTemplate = DefaultBody
	}
	title, err := template.New("title").Parse(cfg.TitleTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse notification title: %w", err)
	}
	body, err := template.New("body").Parse(cfg.BodyTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse notification body: %w", err)
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = platform.NewLogNotifier(cfg.Logger)
	}
	if cfg.Player == nil {
		cfg.Player = platform.NoopPlayer{}
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	if cfg.WakeTimeout <= 0 {
		cfg.WakeTimeout = 30 * time.Second
	}

	return &Dispatcher{
		store:     store,
		canceller: canceller,
		notifier:  cfg.Notifier,
		player:    cfg.Player,
		asset:     cfg.SoundAsset,
		title:     title,
		body:      body,
		events:    cfg.Events,
		audit:     cfg.Audit,
		logger:    cfg.Logger.With("component", "dispatch"),
		metrics:   cfg.Metrics,
		timeout:   cfg.WakeTimeout,
	}, nil
}

// Dispatch claims id and delivers it. An unknown or already fired alarm is
// a silent no-op reported as Result{Fired: false}. Delivery failures are
// published and recorded but never undo the claim, and are not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, id string, trigger Trigger) (Result, error) {
	alarm, claimed, err := d.store.MarkFired(ctx, id)
	if !claimed {
		if d.metrics != nil {
			d.metrics.DispatchNoop.WithLabelValues(string(trigger)).Inc()
		}
		d.logger.Debug("nothing to fire", "alarm_id", id, "trigger", trigger)
		res := Result{Trigger: trigger}
		if alarm.ID != "" {
			res.Alarm = &alarm
		}
		return res, err
	}
	if err != nil {
		// The transition holds in memory until the next successful write.
		d.logger.Error("persist fired alarm", "alarm_id", id, "error", err)
		d.events.Publish(events.Event{
			Type:    events.PersistFailed,
			AlarmID: id,
			Time:    alarm.Time.String(),
			Message: fmt.Sprintf("Could not save alarm %s: %v", alarm.Time, err),
		})
	}

	res := Result{Alarm: &alarm, Fired: true, Trigger: trigger}
	outcome := "delivered"

	if derr := d.deliver(ctx, alarm); derr != nil {
		outcome = "delivery_failed"
		res.DeliveryError = derr.Error()
		if d.metrics != nil {
			d.metrics.DeliveryFailures.WithLabelValues(alarm.Kind.String()).Inc()
		}
		d.logger.Warn("delivery failed", "alarm_id", id, "kind", alarm.Kind, "error", derr)
		d.events.Publish(events.Event{
			Type:    events.DeliveryFailed,
			AlarmID: id,
			Time:    alarm.Time.String(),
			Kind:    alarm.Kind.String(),
			Message: fmt.Sprintf("%s alarm at %s could not be delivered: %v", alarm.Kind, alarm.Time, derr),
		})
	}

	if d.canceller != nil {
		// already logged and counted by the registrar
		_ = d.canceller.Cancel(ctx, id)
	}

	if d.metrics != nil {
		d.metrics.Dispatched.WithLabelValues(string(trigger), alarm.Kind.String()).Inc()
	}
	d.events.Publish(events.Event{
		Type:    events.AlarmFired,
		AlarmID: id,
		Time:    alarm.Time.String(),
		Kind:    alarm.Kind.String(),
		Message: fmt.Sprintf("%s alarm fired (%s)", alarm.Time, trigger),
	})
	d.audit.Record(audit.ActionDispatch, map[string]string{"id": id, "trigger": string(trigger)}, outcome, id, res.DeliveryError)

	d.logger.Info("alarm fired", "alarm_id", id, "time", alarm.Time, "kind", alarm.Kind, "trigger", trigger, "outcome", outcome)
	return res, nil
}

// HandleWake adapts platform wakes to Dispatch. It runs on the capability's
// goroutine and uses its own bounded context.
func (d *Dispatcher) HandleWake(p platform.Deliverable) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if _, err := d.Dispatch(ctx, p.ID, TriggerPlatform); err != nil {
		d.logger.Error("dispatch wake", "alarm_id", p.ID, "error", err)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, a models.Alarm) error {
	switch a.Kind {
	case models.KindSound:
		d.events.Publish(events.Event{
			Type:    events.AlarmAlert,
			AlarmID: a.ID,
			Time:    a.Time.String(),
			Kind:    a.Kind.String(),
			Message: fmt.Sprintf("Alarm: %s", a.Time),
		})
		return d.player.Play(ctx, d.asset)
	case models.KindNotification:
		title, body, err := d.render(a)
		if err != nil {
			return err
		}
		return d.notifier.Notify(ctx, title, body)
	default:
		return fmt.Errorf("%w: %d", models.ErrInvalidKind, int(a.Kind))
	}
}

// templateData is what notification templates can reference.
type templateData struct {
	ID   string
	Time string
	Kind string
}

func (d *Dispatcher) render(a models.Alarm) (string, string, error) {
	data := templateData{ID: a.ID, Time: a.Time.String(), Kind: a.Kind.String()}

	var title, body bytes.Buffer
	if err := d.title.Execute(&title, data); err != nil {
		return "", "", fmt.Errorf("render title: %w", err)
	}
	if err := d.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return title.String(), body.String(), nil
}
