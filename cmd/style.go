// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cmd

import "github.com/charmbracelet/lipgloss"

var (
	warningStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F59E0B"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#667085"))
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2E90FA"))
)

const warningIcon = "!"

func warning(text string) string {
	return warningStyle.Render(warningIcon + " " + text)
}
