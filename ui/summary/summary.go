// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package summary renders tables describing a model for the terminal: its variables, hyperparameters
// and the shapes of its outputs.
//
// Each function returns the rendered table as a string, so it can be printed or logged.
package summary

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
)

// Title renders a section title.
func Title(title string) string {
	return titleStyle.Render(title)
}

// newTable creates a table with alternating row styles. The last alignment is used for
// the remaining columns.
func newTable(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			return s.Align(alignment)
		})
}

// Variables renders the variables under the current scope of ctx, sorted by scope and name.
func Variables(ctx *context.Context) string {
	table := newTable(lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	table.Headers("Scope", "Name", "Shape", "Size", "Bytes")
	var rows [][]string
	for v := range ctx.IterVariablesInScope() {
		if !v.IsValid() {
			rows = append(rows, []string{v.Scope(), v.Name(), "<invalid>", "", ""})
			continue
		}
		shape := v.Shape()
		rows = append(rows, []string{
			v.Scope(), v.Name(), shape.String(),
			humanize.Comma(int64(shape.Size())),
			humanize.Bytes(uint64(shape.Memory())),
		})
	}
	slices.SortFunc(rows, func(a, b []string) int {
		if cmp := strings.Compare(a[0], b[0]); cmp != 0 {
			return cmp
		}
		return strings.Compare(a[1], b[1])
	})
	for _, row := range rows {
		table.Row(row...)
	}
	return table.Render()
}

// Totals renders the number of variables, parameters and bytes under the current scope of ctx.
func Totals(ctx *context.Context) string {
	var numVars, totalSize int
	var totalMemory uintptr
	for v := range ctx.IterVariablesInScope() {
		if !v.IsValid() {
			continue
		}
		numVars++
		totalSize += v.Shape().Size()
		totalMemory += v.Shape().Memory()
	}
	table := newTable(lipgloss.Right, lipgloss.Left)
	table.Row("# variables", humanize.Comma(int64(numVars)))
	table.Row("# parameters", humanize.Comma(int64(totalSize)))
	table.Row("# bytes", humanize.Bytes(uint64(totalMemory)))
	return table.Render()
}

// Params renders the hyperparameters set in ctx, in all scopes, sorted by scope and key.
func Params(ctx *context.Context) string {
	table := newTable()
	table.Headers("Scope", "Name", "Type", "Value")
	var rows [][]string
	ctx.EnumerateParams(func(scope, key string, value any) {
		rows = append(rows, []string{scope, key, fmt.Sprintf("%T", value), fmt.Sprintf("%v", value)})
	})
	slices.SortFunc(rows, func(a, b []string) int {
		if cmp := strings.Compare(a[0], b[0]); cmp != 0 {
			return cmp
		}
		return strings.Compare(a[1], b[1])
	})
	for _, row := range rows {
		table.Row(row...)
	}
	return table.Render()
}

// Entry is one named row of the Shapes and Values tables.
type Entry struct {
	Name  string
	Shape shapes.Shape

	// Value is optional.
	Value any
}

// Shapes renders the name, dimensions and dtype of each entry, in the given order.
func Shapes(entries ...Entry) string {
	table := newTable(lipgloss.Right, lipgloss.Left)
	table.Headers("Output", "Dimensions", "DType")
	for _, e := range entries {
		table.Row(e.Name, fmt.Sprintf("%v", e.Shape.Dimensions), e.Shape.DType.String())
	}
	return table.Render()
}

// Values renders the name, shape and value of each entry, in the given order.
func Values(entries ...Entry) string {
	table := newTable(lipgloss.Right, lipgloss.Left)
	table.Headers("Name", "Shape", "Value")
	for _, e := range entries {
		value := ""
		if e.Value != nil {
			value = fmt.Sprintf("%v", e.Value)
		}
		table.Row(e.Name, e.Shape.String(), value)
	}
	return table.Render()
}
