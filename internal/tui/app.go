// Package tui provides the interactive terminal screens, built on tview.
package tui

import (
	"context"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Color palette
var (
	AccentBlue = tcell.NewRGBColor(59, 130, 246) // #3B82F6

	SuccessGreen  = tcell.NewRGBColor(34, 197, 94) // #22C55E
	ErrorRed      = tcell.NewRGBColor(239, 68, 68) // #EF4444
	WarningYellow = tcell.NewRGBColor(234, 179, 8) // #EAB308
)

// Symbols used in modal text
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
)

// App wraps tview.Application with shared theming and abort handling.
type App struct {
	*tview.Application
}

// NewApp creates a themed TUI application.
func NewApp() *App {
	app := &App{
		Application: tview.NewApplication(),
	}

	app.EnableMouse(true)

	tview.Styles.PrimitiveBackgroundColor = tcell.ColorBlack
	tview.Styles.ContrastBackgroundColor = tcell.ColorBlack
	tview.Styles.MoreContrastBackgroundColor = tcell.ColorDarkSlateGray
	tview.Styles.BorderColor = AccentBlue
	tview.Styles.TitleColor = AccentBlue
	tview.Styles.GraphicsColor = AccentBlue
	tview.Styles.PrimaryTextColor = tcell.ColorWhite
	tview.Styles.SecondaryTextColor = tcell.ColorLightGray
	tview.Styles.TertiaryTextColor = tcell.ColorGray
	tview.Styles.InverseTextColor = tcell.ColorBlack
	tview.Styles.ContrastSecondaryTextColor = tcell.ColorWhite

	bindAbortContext(app)
	return app
}

var (
	abortContextMu sync.RWMutex
	abortContext   context.Context
)

// SetAbortContext registers a process-wide context that stops any running
// TUI when it is canceled (e.g. Ctrl+C). Global so every screen behaves the
// same without bespoke signal handling.
func SetAbortContext(ctx context.Context) {
	abortContextMu.Lock()
	abortContext = ctx
	abortContextMu.Unlock()
}

func bindAbortContext(app *App) {
	abortContextMu.RLock()
	ctx := abortContext
	abortContextMu.RUnlock()
	if ctx == nil {
		return
	}
	go func() {
		<-ctx.Done()
		app.Stop()
	}()
}
