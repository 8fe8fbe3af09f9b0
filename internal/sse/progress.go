package sse

import (
	"github.com/starford/wikiport/internal/converter"
)

// PageProgress is the payload of page.converted, page.skipped and page.failed.
type PageProgress struct {
	RunID  string `json:"run_id"`
	Page   string `json:"page"`
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// BatchStarted is the payload of batch.started.
type BatchStarted struct {
	RunID       string `json:"run_id"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// ProgressHook returns a converter progress hook publishing one event per page.
func (b *Broker) ProgressHook() func(converter.PageResult) {
	return func(res converter.PageResult) {
		ev := PageProgress{RunID: res.RunID, Page: res.Page, Output: res.Output}
		typ := TypePageConverted
		switch {
		case res.Err != nil:
			typ = TypePageFailed
			ev.Error = res.Err.Error()
		case res.Skipped:
			typ = TypePageSkipped
		}
		b.Publish(Event{Type: typ, Data: ev})
	}
}

// PublishReport announces the end of a batch run with its report.
func (b *Broker) PublishReport(report *converter.Report) {
	b.Publish(Event{Type: TypeBatchCompleted, Data: report})
}

// PublishStarted announces a batch run before its first page.
func (b *Broker) PublishStarted(runID, source, destination string) {
	b.Publish(Event{Type: TypeBatchStarted, Data: BatchStarted{
		RunID:       runID,
		Source:      source,
		Destination: destination,
	}})
}

// runOf extracts the run id from a batch.started or batch.completed payload.
func runOf(data any) string {
	switch d := data.(type) {
	case BatchStarted:
		return d.RunID
	case *converter.Report:
		if d != nil {
			return d.RunID
		}
	}
	return ""
}
