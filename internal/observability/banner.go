package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorBold     = "\033[1m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
	colorGreen    = "\033[92m"
)

const banner = `
  ___  __ _| | ___  ___    __ _  __ _  ___ _ __ | |_
 / __|/ _` + "`" + ` | |/ _ \/ __|  / _` + "`" + ` |/ _` + "`" + ` |/ _ \ '_ \| __|
 \__ \ (_| | |  __/\__ \ | (_| | (_| |  __/ | | | |_
 |___/\__,_|_|\___||___/  \__,_|\__, |\___|_| |_|\__|
                                |___/
     >> plans first, changes only on approval <<
`

// IsTerminal reports whether stdin and stdout are both attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// PrintBanner writes the startup banner centred to the terminal width.
// Nothing is written when color is false.
func PrintBanner(w io.Writer, color bool) {
	if !color {
		return
	}
	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Fprintf(w, "%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

// Prompt formats the REPL prompt.
func Prompt(color bool) string {
	if !color {
		return "> "
	}
	return colorBold + colorGreen + "you> " + colorReset
}

// Highlight marks text that needs the user's decision.
func Highlight(s string, color bool) string {
	if !color {
		return s
	}
	return colorNeonMag + s + colorReset
}
