package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/timereports/internal/connectors"
)

// UnitPrefix names every transient unit created for alarms.
const UnitPrefix = "timereports-alarm-"

// calendarLayout is the OnCalendar form accepted by systemd.time(7).
const calendarLayout = "2006-01-02 15:04:05"

// SystemdAlarms registers wakes as transient systemd user timers. Each timer
// starts FireCommand with "fire --id ... --time ... --type ..." on expiry,
// which survives the death of the registering process but not a reboot.
type SystemdAlarms struct {
	conn        connectors.Connector
	fireCommand []string
	loc         *time.Location
	logger      *slog.Logger
}

// NewSystemdAlarms creates a capability that runs systemd through conn.
// fireCommand is the executable plus any leading flags, such as --config.
func NewSystemdAlarms(conn connectors.Connector, fireCommand []string, logger *slog.Logger) *SystemdAlarms {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemdAlarms{
		conn:        conn,
		fireCommand: fireCommand,
		loc:         time.Local,
		logger:      logger.With("component", "platform", "capability", "systemd"),
	}
}

func (s *SystemdAlarms) Name() string { return "systemd" }

// UnitName returns the transient unit used for requestCode.
func UnitName(requestCode int) string {
	return UnitPrefix + strconv.Itoa(requestCode)
}

// Schedule stops any timer already using the unit name, then registers a new one.
func (s *SystemdAlarms) Schedule(ctx context.Context, requestCode int, triggerAtMillis int64, d Deliverable) error {
	if len(s.fireCommand) == 0 {
		return fmt.Errorf("systemd: no fire command configured")
	}
	unit := UnitName(requestCode)

	if err := s.stop(ctx, unit); err != nil {
		return err
	}

	at := time.UnixMilli(triggerAtMillis).In(s.loc)
	args := []string{
		"--user",
		"--unit=" + unit,
		"--description=timereports alarm " + d.Time,
		"--on-calendar=" + at.Format(calendarLayout),
		"--timer-property=AccuracySec=1s",
		"--timer-property=WakeSystem=true",
		"--collect",
	}
	args = append(args, s.fireCommand...)
	args = append(args, "fire", "--id", d.ID, "--time", d.Time, "--type", d.Type)

	res, err := s.conn.Execute(ctx, "systemd-run", args)
	if err != nil {
		return fmt.Errorf("systemd-run: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("systemd-run exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	s.logger.Debug("timer registered", "unit", unit, "alarm_id", d.ID, "at", at)
	return nil
}

// Cancel stops the timer for requestCode. Unknown units are ignored.
func (s *SystemdAlarms) Cancel(ctx context.Context, requestCode int) error {
	return s.stop(ctx, UnitName(requestCode))
}

func (s *SystemdAlarms) stop(ctx context.Context, unit string) error {
	res, err := s.conn.Execute(ctx, "systemctl", []string{"--user", "stop", unit + ".timer"})
	if err != nil {
		return fmt.Errorf("systemctl stop: %w", err)
	}
	if res.ExitCode != 0 {
		// exit 5: unit not loaded
		s.logger.Debug("no timer to stop", "unit", unit, "exit_code", res.ExitCode)
	}
	return nil
}
