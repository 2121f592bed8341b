// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a live watch over tracked downloads:
//  1. [QueueView] : Tracked jobs with live status and progress bars
//  2. [HistoryView] : Finished jobs from the local history cache
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Queue snapshots flow through a channel from the poll controller, and tracked-set
// changes made by other processes arrive through the registry's event channel, so
// the view reacts to both without blocking.
//
// Keyboard navigation uses vim-style bindings (j/k, r, h, x, d, q) with contextual
// help displayed via charmbracelet/bubbles/help.
package ui
