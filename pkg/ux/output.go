// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the termmcp CLI.
package ux

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette - terminal greens and ambers
var (
	ColorAccent  = lipgloss.Color("#4EC9B0") // Titles and highlights
	ColorSuccess = lipgloss.Color("#6A9955") // Success
	ColorWarning = lipgloss.Color("#DCDCAA") // Warnings
	ColorError   = lipgloss.Color("#F44747") // Errors
	ColorMuted   = lipgloss.Color("#808080") // Secondary text, gutters
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Key     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Key:     lipgloss.NewStyle().Foreground(ColorAccent).Width(12),
}

// Icon provides status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
)

// Render returns the icon with its semantic color
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending, IconArrow:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes user-facing status lines.
//
// # Description
//
// When Out is a terminal, lines are styled with icons and colors. When it
// is not (pipes, CI logs, tests), lines use stable "OK:", "WARN:" and
// "ERROR:" prefixes so scripts can grep them. Warnings and errors go to Err
// in plain mode, matching Unix conventions.
//
// # Thread Safety
//
// Not synchronized. The CLI prints from a single goroutine.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Plain bool
}

// NewPrinter creates a Printer, detecting whether out is a terminal.
func NewPrinter(out, errOut io.Writer) *Printer {
	plain := true
	if f, ok := out.(*os.File); ok {
		fd := f.Fd()
		plain = !(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
	}
	return &Printer{Out: out, Err: errOut, Plain: plain}
}

// NewStdPrinter writes to os.Stdout and os.Stderr.
func NewStdPrinter() *Printer {
	return NewPrinter(os.Stdout, os.Stderr)
}

// Title prints a heading. Suppressed in plain mode.
func (p *Printer) Title(text string) {
	if p.Plain {
		return
	}
	fmt.Fprintln(p.Out, Styles.Title.Render(text))
}

// Success prints a success line with a checkmark.
func (p *Printer) Success(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.Plain {
		fmt.Fprintf(p.Out, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning line.
func (p *Printer) Warning(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.Plain {
		fmt.Fprintf(p.Err, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error line.
func (p *Printer) Error(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.Plain {
		fmt.Fprintf(p.Err, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.Err, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational line.
func (p *Printer) Info(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.Plain {
		fmt.Fprintln(p.Out, text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Step prints a progress line for a multi-step operation.
func (p *Printer) Step(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.Plain {
		fmt.Fprintln(p.Out, text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", IconArrow.Render(), text)
}

// KeyValue prints an aligned "key: value" row used by status summaries.
func (p *Printer) KeyValue(key string, value any) {
	if p.Plain {
		fmt.Fprintf(p.Out, "%s: %v\n", key, value)
		return
	}
	fmt.Fprintf(p.Out, "  %s %v\n", Styles.Key.Render(key), value)
}

// Hint prints a remediation hint under an error.
func (p *Printer) Hint(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.Plain {
		fmt.Fprintf(p.Err, "HINT: %s\n", text)
		return
	}
	fmt.Fprintf(p.Err, "  %s\n", Styles.Muted.Render(text))
}
