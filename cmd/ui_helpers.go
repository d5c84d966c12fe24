package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"

	"oraflow/cli/internal/flow"
	"oraflow/cli/internal/logging"
)

var spinnerFrames = []string{"-", "\\", "|", "/"}

// startInlineSpinner starts a simple inline spinner animation on a single line.
// It displays rotating animation frames followed by the provided text, updating
// the same line in the terminal. The spinner runs in a separate goroutine and
// can be stopped by calling the returned function.
//
// The spinner clears its line when stopped.
func startInlineSpinner(w io.Writer, text string, frames []string, interval time.Duration) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			line := fmt.Sprintf("%s %s", frames[i%len(frames)], text)
			select {
			case <-stop:
				fmt.Fprintf(w, "\r%*s\r", len(line), "")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s", line)
				i++
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
		})
	}
}

// statusArea shows a node's live status in a pterm area next to a spinner
// until Stop. It is safe to call set from any goroutine.
type statusArea struct {
	name string
	area *pterm.AreaPrinter
	stop chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	status flow.Status
}

func startStatusArea(name string) *statusArea {
	a := &statusArea{name: name, stop: make(chan struct{}), status: flow.Status{Fill: flow.FillGrey, Shape: flow.ShapeRing, Text: "starting"}}
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		cursor.Show()
		return a
	}
	a.area = area
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		i := 0
		for {
			select {
			case <-t.C:
				i++
				a.mu.Lock()
				st := a.status
				a.mu.Unlock()
				area.Update(fmt.Sprintf("%s %s", spinnerFrames[i%len(spinnerFrames)], logging.RenderStatus(a.name, st)))
			case <-a.stop:
				return
			}
		}
	}()
	return a
}

func (a *statusArea) set(s flow.Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

// Stop removes the area and shows the cursor again.
func (a *statusArea) Stop() {
	if a.area == nil {
		return
	}
	close(a.stop)
	a.wg.Wait()
	_ = a.area.Stop()
	a.area = nil
	cursor.Show()
}

// rowsTable renders result rows as table data: a header of every column name
// in sorted order, then one line per row.
func rowsTable(rows []map[string]any) pterm.TableData {
	seen := map[string]bool{}
	var cols []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)

	data := pterm.TableData{cols}
	for _, r := range rows {
		line := make([]string, len(cols))
		for i, c := range cols {
			line[i] = cellText(r[c])
		}
		data = append(data, line)
	}
	return data
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return t
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(t))
	case time.Time:
		return t.Format(time.RFC3339)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
