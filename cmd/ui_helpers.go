// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"sqlab/engine/internal/sqlexec"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
	"golang.org/x/term"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// areaSpinner shows an animated status line in a pterm area while a
// statement is running. Start and Stop may be called repeatedly.
type areaSpinner struct {
	text    string
	enabled bool

	area *pterm.AreaPrinter
	stop chan struct{}
	wg   sync.WaitGroup
}

func newAreaSpinner(text string, enabled bool) *areaSpinner {
	return &areaSpinner{text: text, enabled: enabled}
}

func (s *areaSpinner) Start() {
	if !s.enabled || s.area != nil {
		return
	}
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		cursor.Show()
		return
	}
	s.area = area
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		i := 0
		for {
			select {
			case <-t.C:
				i++
				area.Update(fmt.Sprintf("%s %s", spinnerFrames[i%len(spinnerFrames)], s.text))
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *areaSpinner) Stop() {
	if s.area == nil {
		return
	}
	close(s.stop)
	s.wg.Wait()
	_ = s.area.Stop()
	s.area = nil
	cursor.Show()
}

// isTerminal reports whether stdout is an interactive terminal.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// clearPreviousLines clears textLength characters of prompt and input printed
// above the cursor, accounting for line wrapping at the terminal width.
func clearPreviousLines(textLength int) {
	termWidth := 80
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		termWidth = width
	}
	totalLines := int(math.Ceil(float64(textLength) / float64(termWidth)))
	if totalLines < 1 {
		totalLines = 1
	}
	// After Enter the cursor sits on a new line below the input.
	linesToClear := totalLines + 1
	for i := 0; i < linesToClear; i++ {
		fmt.Print("\r\x1b[2K")
		if i < linesToClear-1 {
			fmt.Print("\x1b[1A")
		}
	}
}

// promptSecret reads one line without echo when stdin is a terminal.
func promptSecret(in io.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// printDataset renders ds as a pterm table followed by a row count.
func printDataset(w io.Writer, ds *sqlexec.Dataset) {
	data := make(pterm.TableData, 0, len(ds.Rows)+1)
	data = append(data, ds.ColumnNames())
	for _, row := range ds.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = sqlexec.Text(v)
		}
		data = append(data, cells)
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	fmt.Fprintln(w, out)
	noun := "rows"
	if len(ds.Rows) == 1 {
		noun = "row"
	}
	fmt.Fprintln(w, pterm.FgGray.Sprintf("(%d %s)", len(ds.Rows), noun))
}
