// Package notify sends the daily review reminder as a macOS notification.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/pkg/logger"
)

const (
	Title = "Lerni Review Reminder"

	// LaunchdLabel names the launch agent printed by Setup.
	LaunchdLabel = "com.lerni.notify"

	promptPreview = 30
)

var ErrUnsupported = errors.New("notifications are only supported on macOS")

type Message struct {
	Title string
	Body  string
}

// Sender delivers a message to the desktop.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Compose builds the reminder for the due questions. It reports false when
// nothing is due.
func Compose(due []models.Question) (Message, bool) {
	if len(due) == 0 {
		return Message{}, false
	}
	return ComposeCount(len(due), due[0].Prompt)
}

// ComposeCount builds the reminder from a due count and the prompt of the
// first due question.
func ComposeCount(count int, firstPrompt string) (Message, bool) {
	switch {
	case count <= 0:
		return Message{}, false
	case count == 1:
		return Message{Title: Title, Body: "1 question due: " + preview(firstPrompt)}, true
	default:
		return Message{Title: Title, Body: fmt.Sprintf("%d questions due for review", count)}, true
	}
}

func preview(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > promptPreview {
		return string(runes[:promptPreview])
	}
	return prompt
}

// OSAScript posts notifications through osascript.
type OSAScript struct {
	// Path overrides the osascript binary.
	Path string
}

func (o OSAScript) Send(ctx context.Context, msg Message) error {
	if runtime.GOOS != "darwin" {
		return ErrUnsupported
	}

	bin := o.Path
	if bin == "" {
		bin = "osascript"
	}

	out, err := exec.CommandContext(ctx, bin, "-e", Script(msg)).CombinedOutput()
	if err != nil {
		var notFound *exec.Error
		if errors.As(err, &notFound) {
			return fmt.Errorf("osascript not found: %w", err)
		}
		return fmt.Errorf("failed to send notification: %w: %s", err, strings.TrimSpace(string(out)))
	}

	logger.Debug("Notification sent", zap.String("body", msg.Body))
	return nil
}

// Script is the AppleScript that displays msg.
func Script(msg Message) string {
	return fmt.Sprintf("display notification %s with title %s", quote(msg.Body), quote(msg.Title))
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// ParseReminderTime splits "HH:MM". Anything unparseable yields 9:00.
func ParseReminderTime(reminder string) (hour, minute int) {
	h, m, ok := strings.Cut(reminder, ":")
	if !ok {
		return 9, 0
	}
	hour, errH := strconv.Atoi(h)
	minute, errM := strconv.Atoi(m)
	if errH != nil || errM != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 9, 0
	}
	return hour, minute
}

// CronLine is a crontab entry running command daily at reminder.
func CronLine(reminder, command string) string {
	hour, minute := ParseReminderTime(reminder)
	return fmt.Sprintf("%d %d * * * %s notify 2>/dev/null", minute, hour, command)
}

// LaunchdPlist is a launch agent running command daily at reminder.
func LaunchdPlist(reminder, command string) string {
	hour, minute := ParseReminderTime(reminder)
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>%s</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
        <string>notify</string>
    </array>
    <key>StartCalendarInterval</key>
    <dict>
        <key>Hour</key>
        <integer>%d</integer>
        <key>Minute</key>
        <integer>%d</integer>
    </dict>
    <key>StandardErrorPath</key>
    <string>/tmp/lerni-notify.err</string>
</dict>
</plist>
`, LaunchdLabel, command, hour, minute)
}
