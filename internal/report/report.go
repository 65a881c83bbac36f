package report

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/cbrunnkvist/jittertest/internal/clock"
	"github.com/cbrunnkvist/jittertest/internal/spike"
)

// Program identifies the tool in XML and JSON headers.
const Program = "jittertest"

// Header is what Begin prints before the measurement.
type Header struct {
	Version string
	Command []string
	Method  string
	Unit    string
	Date    time.Time
	// ShowDate prints the date line even at low verbosity.
	ShowDate bool
	// SMICount, when non-nil, is the count read before the run.
	SMICount *uint64
}

// Summary is what the Reporter prints after the measurement.
type Summary struct {
	Method   string
	MinSpike uint64
	HaveMin  bool
	// Overhead is usec for the time method, cycles for the cycle method.
	Overhead     uint64
	ShowOverhead bool
}

// Footer is what End prints.
type Footer struct {
	SMICount *uint64
	Date     time.Time
	ShowDate bool
}

// Reporter writes one run's report. It is not safe for concurrent use.
// Write errors are sticky and returned by Flush and End.
type Reporter struct {
	w         *bufio.Writer
	format    Format
	verbosity int
	unit      string
	err       error
}

// New returns a Reporter writing format to w. Verbosity 0 suppresses the
// per-spike lines, verbosity 2 and up adds the command line, date and
// minimum spike.
func New(w io.Writer, format Format, verbosity int) *Reporter {
	return &Reporter{
		w:         bufio.NewWriter(w),
		format:    format,
		verbosity: verbosity,
		unit:      "usec",
	}
}

func (r *Reporter) printf(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

func (r *Reporter) json(v any) {
	if r.err != nil {
		return
	}
	b, err := sonnet.Marshal(v)
	if err != nil {
		r.err = fmt.Errorf("encode %T: %w", v, err)
		return
	}
	b = append(b, '\n')
	_, r.err = r.w.Write(b)
}

func (r *Reporter) wantDate(show bool) bool {
	return show || r.verbosity >= 2
}

// Begin prints the preamble.
func (r *Reporter) Begin(h Header) {
	if h.Unit != "" {
		r.unit = h.Unit
	}
	switch r.format {
	case CSV:
		if r.wantDate(h.ShowDate) {
			r.printf("Date and time,%s\n", csvDate(h.Date))
		}
		if r.verbosity >= 2 {
			r.printf("Command,%s\n", strings.Join(h.Command, ","))
		}
		if h.SMICount != nil {
			r.printf("SMI count,%d\n", *h.SMICount)
		}
		r.printf("Elapsed time (seconds),latency spike (%s),delta time (usec)\n", r.unit)
	case XML:
		r.printf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
		r.printf("<spike_data>\n")
		r.printf("   <version>\n      <major>1</major>\n      <minor>1</minor>\n   </version>\n")
		r.printf("%s", xmlDate("   ", h.Date))
		r.printf("   <source>\n      <program>\n         <name>%s</name>\n", Program)
		r.printf("         <version>%s</version>\n", xmlEscape(h.Version))
		r.printf("         <command>%s</command>\n", xmlEscape(strings.Join(h.Command, " ")))
		r.printf("      </program>\n   </source>\n")
		if h.SMICount != nil {
			r.printf("   <SMIcount>%d</SMIcount>\n", *h.SMICount)
		}
		r.printf("   <data>\n")
		r.printf("      <field_1>\n         <name>elapsed</name>\n         <units>second</units>\n      </field_1>\n")
		r.printf("      <field_2>\n         <name>spike</name>\n         <units>%s</units>\n      </field_2>\n", r.unit)
		r.printf("      <field_3>\n         <name>delta</name>\n         <units>usec</units>\n      </field_3>\n")
	case JSON:
		r.json(jsonHeader{
			Type:     "header",
			Program:  Program,
			Version:  h.Version,
			Command:  h.Command,
			Method:   h.Method,
			Unit:     r.unit,
			Date:     h.Date.Format(time.RFC3339),
			SMICount: h.SMICount,
		})
	default:
		if r.wantDate(h.ShowDate) {
			r.printf("The current date and time are %s\n", freeformDate(h.Date))
		}
		if r.verbosity >= 2 {
			r.printf("Command:  %s\n", strings.Join(h.Command, " "))
		}
		if h.SMICount != nil {
			r.printf("SMI count:  %d\n", *h.SMICount)
		}
	}
}

// Spike implements spike.Sink.
func (r *Reporter) Spike(e spike.Event) {
	if r.verbosity <= 0 {
		return
	}
	at := e.Stamp()
	switch r.format {
	case CSV:
		if e.HasPrevious() {
			r.printf("%5d.%06d,%d,%d\n", at.Sec, at.Usec, e.Magnitude, e.Gap)
		} else {
			r.printf("%5d.%06d,%d\n", at.Sec, at.Usec, e.Magnitude)
		}
	case XML:
		r.printf("      <datum>\n         <elapsed>%d.%06d</elapsed><spike>%d</spike>", at.Sec, at.Usec, e.Magnitude)
		if e.HasPrevious() {
			r.printf("<delta>%d</delta>", e.Gap)
		}
		r.printf("\n      </datum>\n")
	case JSON:
		d := jsonSpike{Type: "spike", Elapsed: at.String(), ElapsedUsec: e.Elapsed, Spike: e.Magnitude, Unit: r.unit}
		if e.HasPrevious() {
			gap := e.Gap
			d.Delta = &gap
		}
		r.json(d)
	default:
		r.printf("%5d.%06d Latency spike of %d %s\n", at.Sec, at.Usec, e.Magnitude, r.unit)
		if e.HasPrevious() {
			r.printf("             %d usec since last spike\n", e.Gap)
		}
	}
}

// Flush implements spike.Sink. It pushes buffered output to the writer.
func (r *Reporter) Flush() error {
	if r.err != nil {
		return r.err
	}
	r.err = r.w.Flush()
	return r.err
}

// Summary prints the minimum spike and overhead lines.
func (r *Reporter) Summary(s Summary) {
	showMin := s.HaveMin && r.verbosity >= 2
	cycles := s.Method == "cycles"
	switch r.format {
	case CSV:
		if showMin {
			r.printf("minimum spike,%d\n", s.MinSpike)
		}
		if s.ShowOverhead {
			if cycles {
				r.printf("Overhead cycles,%d\n", s.Overhead)
			} else {
				r.printf("Overhead seconds,%s\n", clock.StampOf(s.Overhead))
			}
		}
	case XML:
		if showMin {
			r.printf("      <minimum_spike>%d</minimum_spike>\n", s.MinSpike)
		}
		if s.ShowOverhead {
			if cycles {
				r.printf("      <OverheadCycles>%d</OverheadCycles>\n", s.Overhead)
			} else {
				r.printf("      <OverheadSeconds>%s</OverheadSeconds>\n", clock.StampOf(s.Overhead))
			}
		}
	case JSON:
		if !showMin && !s.ShowOverhead {
			return
		}
		d := jsonSummary{Type: "summary", Method: s.Method, Unit: r.unit}
		if showMin {
			m := s.MinSpike
			d.MinSpike = &m
		}
		if s.ShowOverhead {
			o := s.Overhead
			d.Overhead = &o
		}
		r.json(d)
	default:
		if showMin {
			r.printf("minimum spike = %d units\n", s.MinSpike)
		}
		if s.ShowOverhead {
			if cycles {
				r.printf("Overhead cycles = %d\n", s.Overhead)
			} else {
				r.printf("Overhead seconds:  %s\n", clock.StampOf(s.Overhead))
			}
		}
	}
}

// End prints the closing lines and flushes.
func (r *Reporter) End(f Footer) error {
	showDate := r.wantDate(f.ShowDate)
	switch r.format {
	case CSV:
		if f.SMICount != nil {
			r.printf("SMI count,%d\n", *f.SMICount)
		}
		if showDate {
			r.printf("Date and time,%s\n", csvDate(f.Date))
		}
	case XML:
		r.printf("   </data>\n")
		if f.SMICount != nil {
			r.printf("   <SMIcount>%d</SMIcount>\n", *f.SMICount)
		}
		if showDate {
			r.printf("%s", xmlDate("   ", f.Date))
		}
		r.printf("</spike_data>\n")
	case JSON:
		if f.SMICount != nil || showDate {
			d := jsonFooter{Type: "footer", SMICount: f.SMICount}
			if showDate {
				d.Date = f.Date.Format(time.RFC3339)
			}
			r.json(d)
		}
	default:
		if f.SMICount != nil {
			r.printf("SMI count:  %d\n", *f.SMICount)
		}
		if showDate {
			r.printf("The current date and time are %s\n", freeformDate(f.Date))
		}
	}
	return r.Flush()
}

func csvDate(t time.Time) string {
	return fmt.Sprintf("%d,%d,%d,%02d,%02d,%02d", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

func freeformDate(t time.Time) string {
	return fmt.Sprintf("%d %d %d %02d:%02d:%02d", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

func xmlDate(indent string, t time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s<date>\n", indent)
	fmt.Fprintf(&b, "%s   <year>%d</year>\n", indent, t.Year())
	fmt.Fprintf(&b, "%s   <month>%d</month>\n", indent, int(t.Month()))
	fmt.Fprintf(&b, "%s   <day>%d</day>\n", indent, t.Day())
	fmt.Fprintf(&b, "%s   <hour>%02d</hour>\n", indent, t.Hour())
	fmt.Fprintf(&b, "%s   <minute>%02d</minute>\n", indent, t.Minute())
	fmt.Fprintf(&b, "%s   <second>%02d</second>\n", indent, t.Second())
	fmt.Fprintf(&b, "%s</date>\n", indent)
	return b.String()
}

func xmlEscape(s string) string {
	var b strings.Builder
	// EscapeText only fails when the writer does.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

type jsonHeader struct {
	Type     string   `json:"type"`
	Program  string   `json:"program"`
	Version  string   `json:"version"`
	Command  []string `json:"command"`
	Method   string   `json:"method"`
	Unit     string   `json:"unit"`
	Date     string   `json:"date"`
	SMICount *uint64  `json:"smi_count,omitempty"`
}

type jsonSpike struct {
	Type        string  `json:"type"`
	Elapsed     string  `json:"elapsed"`
	ElapsedUsec uint64  `json:"elapsed_usec"`
	Spike       uint64  `json:"spike"`
	Unit        string  `json:"unit"`
	Delta       *uint64 `json:"delta,omitempty"`
}

type jsonSummary struct {
	Type     string  `json:"type"`
	Method   string  `json:"method"`
	Unit     string  `json:"unit"`
	MinSpike *uint64 `json:"min_spike,omitempty"`
	Overhead *uint64 `json:"overhead,omitempty"`
}

type jsonFooter struct {
	Type     string  `json:"type"`
	SMICount *uint64 `json:"smi_count,omitempty"`
	Date     string  `json:"date,omitempty"`
}
