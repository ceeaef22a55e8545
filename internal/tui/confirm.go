package tui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

var modalCreatedHook func(*tview.Modal)

func notifyModalCreated(modal *tview.Modal) {
	if modalCreatedHook != nil {
		modalCreatedHook(modal)
	}
}

// ShowConfirm displays a Yes/No confirmation modal. The app stops once a
// button is chosen.
func ShowConfirm(app *App, title, message string, onYes, onNo func()) {
	if !strings.Contains(message, "[yellow]") {
		message = message + "\n\n[yellow]Use TAB or ←→ Arrows to switch | Press ENTER to select[white]"
	}

	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"Yes", "No"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			if buttonLabel == "Yes" && onYes != nil {
				onYes()
			} else if buttonLabel == "No" && onNo != nil {
				onNo()
			}
			app.Stop()
		})

	notifyModalCreated(modal)

	modal.SetBorder(true).
		SetTitle(" " + title + " ").
		SetTitleAlign(tview.AlignCenter).
		SetTitleColor(WarningYellow).
		SetBorderColor(WarningYellow).
		SetBackgroundColor(tcell.ColorBlack)

	app.SetRoot(modal, true).SetFocus(modal)
}

// ConfirmDeletions runs a modal summarizing a retention plan and blocks
// until the operator approves or rejects it. Closing the screen without a
// choice counts as rejection.
func ConfirmDeletions(title string, keptCount int, doomed []string) (bool, error) {
	message := deletionMessage(keptCount, doomed)

	app := NewApp()
	confirmed := false
	ShowConfirm(app, title, message, func() { confirmed = true }, nil)
	if err := app.Run(); err != nil {
		return false, fmt.Errorf("run confirmation screen: %w", err)
	}
	return confirmed, nil
}

const deletionListLimit = 20

func deletionMessage(keptCount int, doomed []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %d archive(s) will be kept.\n\n", SymbolSuccess, keptCount)
	fmt.Fprintf(&sb, "%s %d archive(s) will be DELETED:\n", SymbolWarning, len(doomed))

	shown := doomed
	if len(shown) > deletionListLimit {
		shown = shown[:deletionListLimit]
	}
	for _, name := range shown {
		fmt.Fprintf(&sb, "  %s\n", name)
	}
	if extra := len(doomed) - len(shown); extra > 0 {
		fmt.Fprintf(&sb, "  ... and %d more\n", extra)
	}

	sb.WriteString("\nProceed with deletion?")
	return sb.String()
}
