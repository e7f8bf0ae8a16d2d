package main

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"

	"wasmlab-server/wasmvm"
)

func renderResult(res *wasmvm.Result, showCalls bool) {
	rows := pterm.TableData{{"#", "Stream", "Time", "Message"}}
	for i, entry := range res.Entries {
		stream := pterm.FgGreen.Sprint(entry.Stream)
		if entry.Stream == wasmvm.Stderr {
			stream = pterm.FgRed.Sprint(entry.Stream)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			stream,
			entry.Timestamp.Format("15:04:05.000"),
			entry.Message,
		})
	}
	if len(res.Entries) > 0 {
		_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	} else {
		pterm.Info.Println("no output")
	}

	if showCalls && len(res.Calls) > 0 {
		calls := pterm.TableData{{"Function", "OK", "Detail"}}
		for _, c := range res.Calls {
			calls = append(calls, []string{c.Func, strconv.FormatBool(c.OK), c.Detail})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithData(calls).Render()
	}
	if res.Dropped > 0 {
		pterm.Warning.Printf("%d entries dropped by the io limit\n", res.Dropped)
	}

	summary := fmt.Sprintf("record %d returned %d in %v", res.RecordID, res.Status, res.Duration)
	if res.Trap != "" {
		pterm.Error.Printf("record %d trapped after %v: %s\n", res.RecordID, res.Duration, res.Trap)
		return
	}
	pterm.Success.Println(summary)
}
