// Package timetable turns the callbacks a guest issues while parsing one
// timetable record into a protocol.Report.
package timetable

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/woxQAQ/timetable-bridge/internal/calendar"
	"github.com/woxQAQ/timetable-bridge/pkg/protocol"
)

// Collector implements wasm.Callbacks and records what the guest reports.
type Collector struct {
	logger *zap.Logger

	mu     sync.Mutex
	report protocol.Report
	// Index of the run the next calendar callback lands in, -1 for none.
	open int
}

// NewCollector returns a collector with an empty report.
func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{
		logger: logger.With(zap.String("component", "timetable-collector")),
		open:   -1,
	}
}

// Reset discards everything collected so far and starts a report for record.
func (c *Collector) Reset(record string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.report = protocol.Report{Record: record}
	c.open = -1
}

// Report returns a copy of the report collected since the last Reset.
func (c *Collector) Report() *protocol.Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := &protocol.Report{
		Record: c.report.Record,
		Logs:   append([]string(nil), c.report.Logs...),
	}
	for _, run := range c.report.Runs {
		out.Runs = append(out.Runs, protocol.CalendarRun{
			Bracketed:   run.Bracketed,
			Semesters:   append([]protocol.Semester(nil), run.Semesters...),
			Resolutions: append([]protocol.Resolution(nil), run.Resolutions...),
		})
	}
	return out
}

// Log records a message decoded from guest memory.
func (c *Collector) Log(ctx context.Context, msg string) {
	c.mu.Lock()
	c.report.Logs = append(c.report.Logs, msg)
	c.mu.Unlock()

	c.logger.Info(msg)
}

// BeginCalendar opens a bracketed run, closing one left open.
func (c *Collector) BeginCalendar(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open >= 0 && c.report.Runs[c.open].Bracketed {
		c.logger.Warn("beginCalendar while a calendar is open, closing it")
	}
	c.report.Runs = append(c.report.Runs, protocol.CalendarRun{Bracketed: true})
	c.open = len(c.report.Runs) - 1
}

// EndCalendar closes the open bracketed run.
func (c *Collector) EndCalendar(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open < 0 || !c.report.Runs[c.open].Bracketed {
		c.logger.Warn("endCalendar without beginCalendar, ignored")
		return
	}
	c.open = -1
}

// DoSemester adds a semester to the current run.
func (c *Collector) DoSemester(ctx context.Context, year, semester int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run := c.current()
	run.Semesters = append(run.Semesters, protocol.Semester{Year: year, Semester: semester})

	c.logger.Debug("Semester",
		zap.Int32("year", year),
		zap.Int32("semester", semester),
	)
}

// GetUTC resolves the query and adds it to the current run.
func (c *Collector) GetUTC(ctx context.Context, year, week, weekday int32) float64 {
	seconds := calendar.ResolveUTC(int(year), int(week), int(weekday))

	c.mu.Lock()
	defer c.mu.Unlock()

	run := c.current()
	run.Resolutions = append(run.Resolutions, protocol.Resolution{
		Query:     protocol.CalendarQuery{Year: year, Week: week, Weekday: weekday},
		Timestamp: seconds,
	})

	return float64(seconds)
}

// current returns the open run, starting an unbracketed one if none is open.
// Callers hold c.mu.
func (c *Collector) current() *protocol.CalendarRun {
	if c.open < 0 {
		c.report.Runs = append(c.report.Runs, protocol.CalendarRun{})
		c.open = len(c.report.Runs) - 1
	}
	return &c.report.Runs[c.open]
}
