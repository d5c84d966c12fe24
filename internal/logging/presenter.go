// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pterm/pterm"

	"oraflow/cli/internal/flow"
)

// PresentError formats an error for user display with masking.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", context, Mask(err.Error()))
}

// ConnectErrorType is the category of a failed connection attempt.
type ConnectErrorType int

const (
	ConnectErrorUnknown ConnectErrorType = iota
	ConnectErrorNetwork
	ConnectErrorAuth
	ConnectErrorTimeout
	ConnectErrorService
	ConnectErrorClient
)

var reOraCode = regexp.MustCompile(`ORA-(\d{5})`)

// ParseConnectError categorizes a driver error message.
func ParseConnectError(errMsg string) ConnectErrorType {
	if m := reOraCode.FindStringSubmatch(errMsg); m != nil {
		switch m[1] {
		case "01017", "01005", "28000", "28001":
			return ConnectErrorAuth
		case "12170", "12535":
			return ConnectErrorTimeout
		case "12514", "12505", "12528", "01034", "01033":
			return ConnectErrorService
		case "12541", "12543", "12545", "03113", "03135", "12537":
			return ConnectErrorNetwork
		case "12154":
			return ConnectErrorClient
		}
	}

	lower := strings.ToLower(errMsg)
	switch {
	case strings.Contains(lower, "password authentication failed"), strings.Contains(lower, "sqlstate 28p01"), strings.Contains(lower, "invalid username/password"):
		return ConnectErrorAuth
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline"):
		return ConnectErrorTimeout
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"), strings.Contains(lower, "connection reset"):
		return ConnectErrorNetwork
	case strings.Contains(lower, "does not exist"):
		return ConnectErrorService
	case strings.Contains(lower, "tnsnames"), strings.Contains(lower, "dpi-1047"):
		return ConnectErrorClient
	}
	return ConnectErrorUnknown
}

// FormatConnectError explains a failed connection to server in a
// user-friendly way.
func FormatConnectError(server string, err error) string {
	errMsg := Mask(err.Error())
	var b strings.Builder

	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Connection failed"))
	b.WriteString("\n\n")

	switch ParseConnectError(errMsg) {
	case ConnectErrorNetwork:
		b.WriteString("The database host could not be reached.\n")
		b.WriteString("Check that the listener is running and the host and port are correct.\n")
	case ConnectErrorAuth:
		b.WriteString("The database rejected the credentials.\n")
		b.WriteString(fmt.Sprintf("Run 'oraflow connect %s' to store a new password.\n", server))
	case ConnectErrorTimeout:
		b.WriteString("The connection attempt timed out.\n")
		b.WriteString("A firewall may be dropping traffic, or the host may be overloaded.\n")
	case ConnectErrorService:
		b.WriteString("The listener answered but does not know the requested service or database.\n")
		b.WriteString("Check the service name, or the tnsnames.ora entry the alias points to.\n")
	case ConnectErrorClient:
		b.WriteString("The connect string could not be resolved on this machine.\n")
		b.WriteString("Check TNS_ADMIN and the instant client path.\n")
	default:
		b.WriteString("The connection pool could not be created.\n")
	}

	b.WriteString("\n")
	b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + errMsg))
	return b.String()
}

// StatusSymbol returns the glyph for a status shape.
func StatusSymbol(s flow.Shape) string {
	if s == flow.ShapeRing {
		return "○"
	}
	return "●"
}

// RenderStatus formats a node status for the terminal.
func RenderStatus(name string, s flow.Status) string {
	var color pterm.Color
	switch s.Fill {
	case flow.FillGreen:
		color = pterm.FgGreen
	case flow.FillYellow:
		color = pterm.FgYellow
	case flow.FillRed:
		color = pterm.FgRed
	default:
		color = pterm.FgGray
	}
	return fmt.Sprintf("%s %s %s", pterm.NewStyle(color).Sprint(StatusSymbol(s.Shape)), pterm.Bold.Sprint(name), Mask(s.Text))
}
