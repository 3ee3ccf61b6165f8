// views.go contains the terminal views mounted by the CLI commands.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/perchhq/perch-sync/internal/shell"
	"github.com/perchhq/perch-sync/pkg/models"
)

// logView logs each live event; mounted by "run".
type logView struct {
	logger *slog.Logger
}

func (v *logView) Name() string { return "log" }

func (v *logView) Mounted(cache shell.Reader, generation uint64) {}

func (v *logView) OnEvent(evt models.Event) {
	attrs := []any{"type", evt.Type}
	if !evt.Time.IsZero() {
		attrs = append(attrs, "time", evt.Time)
	}
	for _, snap := range evt.Snapshots() {
		attrs = append(attrs, "entity", fmt.Sprintf("%s/%s", snap.Kind(), snap.EntityID()))
	}
	v.logger.Info("event", attrs...)
}

// tailView prints each live event to out; mounted by "tail".
type tailView struct {
	out  io.Writer
	json bool
}

func (v *tailView) Name() string { return "tail" }

func (v *tailView) Mounted(cache shell.Reader, generation uint64) {}

func (v *tailView) OnEvent(evt models.Event) {
	if v.json {
		payload, err := json.Marshal(evt)
		if err != nil {
			return
		}
		fmt.Fprintln(v.out, string(payload))
		return
	}

	line := string(evt.Type)
	for _, snap := range evt.Snapshots() {
		line += fmt.Sprintf(" %s/%s", snap.Kind(), snap.EntityID())
	}
	fmt.Fprintln(v.out, line)
}
