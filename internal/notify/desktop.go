package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Desktop shows a toast with the platform's notification tool.
type Desktop struct {
	goos string
	run  func(ctx context.Context, name string, args ...string) error
	look func(name string) bool
}

// NewDesktop returns a notifier for the running platform.
func NewDesktop() *Desktop {
	return &Desktop{goos: runtime.GOOS, run: runCommand, look: isCommandAvailable}
}

// Notify shows msg as a desktop notification.
func (d *Desktop) Notify(ctx context.Context, msg Message) error {
	body := msg.Body
	if body == "" {
		body = msg.Text()
	}
	switch d.goos {
	case "linux":
		return d.notifyLinux(ctx, msg.Title, body)
	case "darwin":
		script := fmt.Sprintf(`display notification %s with title %s`, appleQuote(body), appleQuote(msg.Title))
		return d.run(ctx, "osascript", "-e", script)
	case "windows":
		return d.run(ctx, "powershell", "-NoProfile", "-Command", windowsToast(msg.Title, body))
	default:
		return fmt.Errorf("unsupported platform: %s", d.goos)
	}
}

func (d *Desktop) notifyLinux(ctx context.Context, title, body string) error {
	tools := [][]string{
		{"notify-send", "--app-name=tempoledger", title, body},
		{"zenity", "--notification", "--text=" + title + "\n" + body},
	}
	for _, tool := range tools {
		if d.look(tool[0]) {
			if err := d.run(ctx, tool[0], tool[1:]...); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("no suitable notification tool found (tried: notify-send, zenity)")
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func windowsToast(title, body string) string {
	esc := func(s string) string { return strings.ReplaceAll(s, "'", "''") }
	return fmt.Sprintf(`Add-Type -AssemblyName System.Windows.Forms; `+
		`$n = New-Object System.Windows.Forms.NotifyIcon; `+
		`$n.Icon = [System.Drawing.SystemIcons]::Information; `+
		`$n.Visible = $true; `+
		`$n.ShowBalloonTip(10000, '%s', '%s', 'Info'); `+
		`Start-Sleep -Seconds 5; $n.Dispose()`, esc(title), esc(body))
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func isCommandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
