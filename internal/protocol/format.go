package protocol

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pisugar/pisugar-server/internal/model"
)

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatChargingRange(r *model.ChargingRange) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%d,%d", r.RestartPercent, r.StopPercent)
}

func parseBool(s string) (bool, error) {
	switch s {
	case "1", "true", "on":
		return true, nil
	case "0", "false", "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected a boolean, got %q", s)
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}

func parseChargingRange(s string) (*model.ChargingRange, error) {
	if s == "" {
		return nil, nil
	}
	var restart, stop int
	if _, err := fmt.Sscanf(s, "%d,%d", &restart, &stop); err != nil {
		return nil, fmt.Errorf("expected <restart>,<stop>, got %q", s)
	}
	return &model.ChargingRange{RestartPercent: restart, StopPercent: stop}, nil
}

func reply(key, value string) string {
	return key + ": " + value + "\n"
}

func done(cmd string) string {
	return cmd + ": done\n"
}

func replyErr(cmd string, err error) string {
	return cmd + ": " + err.Error() + "\n"
}

func unknown(cmd string) string {
	return cmd + ": unknown command\n"
}
