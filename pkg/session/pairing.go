package session

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mdp/qrterminal/v3"
)

// PairingDisplay surfaces a pairing code to the operator.
type PairingDisplay interface {
	Show(code string)
}

var promptStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	Padding(0, 1).
	Bold(true)

// TerminalPairing renders the pairing code as a QR block on a terminal,
// with the raw code below it for devices that cannot scan.
type TerminalPairing struct {
	Out io.Writer
}

func (p *TerminalPairing) Show(code string) {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}

	fmt.Fprintln(out, promptStyle.Render("Scan to pair this session"))
	qrterminal.GenerateHalfBlock(code, qrterminal.L, out)
	fmt.Fprintf(out, "\npairing code: %s\n\n", code)
}

// NopPairing discards pairing prompts; used when no operator terminal is
// attached (the code still reaches logs through the lifecycle stream).
type NopPairing struct{}

func (NopPairing) Show(string) {}
