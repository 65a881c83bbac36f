//go:build ignore

// genman generates the jittertest man page.
// Usage: go run cmd/genman/main.go > jittertest.1
package main

import (
	"fmt"
	"os"
)

func main() {
	// Use a fixed date for reproducible builds/CI
	date := "October 2026"

	manpage := fmt.Sprintf(`.TH JITTERTEST 1 "%s" "jittertest 0.1.0" "User Commands"
.SH NAME
jittertest \- measure operating-system induced latency jitter
.SH SYNOPSIS
.B jittertest
[\fIflags\fR]
.SH DESCRIPTION
.B jittertest
locks its memory, raises its scheduling priority and reads a clock in a
tight loop. Every gap between two consecutive reads that reaches the
threshold is reported as a latency spike, together with the time since the
previous spike.
.PP
A warm-up pass with a threshold of zero runs first and its output is
discarded. Spikes are buffered in memory and written out when the buffer
fills and when the run ends.
.SH OPTIONS
.TP
.BR \-m ", " \-\-method " \fItime\fR|\fIcycles\fR"
Time base. \fItime\fR reads the wall clock in microseconds; \fIcycles\fR
reads the CPU cycle counter and reads the wall clock only when a spike is
recorded. Any unambiguous prefix is accepted.
.TP
.BR \-t ", " \-\-threshold " \fIn\fR"
Spike threshold in the method's unit. Default 10 usec or 10000 cycles;
0 keeps the default.
.TP
.BR \-l ", " \-\-loopcount " \fIn\fR"
Iterations of the measurement pass (default 5000000000).
.TP
.BR \-f ", " \-\-format " \fIfreeform\fR|\fIcsv\fR|\fIxml\fR|\fIjson\fR"
Report format (default freeform).
.TP
.BR \-o ", " \-\-option " \fIname\fR[,\fIname\fR...]"
\fIdate\fR prints the date before and after the run; \fIsmi_count\fR prints
MSR_SMI_COUNT of the measuring core before and after; \fIpower_hog\fR runs a
floating-point workload between cycle counter reads; \fIoverhead\fR prints
the total cost of handling spikes. Repeatable.
.TP
.BR \-p ", " \-\-priority " [\fIPOLICY\fR][,\fIPRIO\fR][,\fINICE\fR]"
Scheduling policy FIFO, RR or OTHER, static priority and nice value.
Default FIFO at the highest priority with nice \-20. Values out of range
are clamped.
.TP
.BR \-c ", " \-\-cpu " \fIn\fR"
Pin the measuring thread to CPU \fIn\fR.
.TP
.B \-\-clock \fIvdso\fR|\fIsyscall\fR
Wall clock source (default vdso).
.TP
.B \-\-capacity \fIn\fR
Spike buffer slots (default 1024, minimum 4).
.TP
.B \-\-metrics\-file \fIpath\fR
Write the run's metrics in Prometheus text format to \fIpath\fR at exit.
.TP
.BR \-P ", " \-\-profile " \fIname\fR"
Use a preset measurement. See \fBPROFILES\fR.
.TP
.BR \-L ", " \-\-list\-profiles
List the presets.
.TP
.BR \-v ", " \-\-verbose [=\fIn\fR]
Verbosity. 0 prints summaries only, 1 spikes, 2 adds the command line,
date and minimum delta, 3 traces spikes as they are recorded.
.TP
.BR \-b ", " \-\-brief
Same as \-\-verbose=0.
.TP
.BR \-e ", " \-\-explain
Explain the measurement.
.TP
.BR \-V ", " \-\-version
Show version information.
.TP
.BR \-h ", " \-\-help
Show help message.
.SH PROFILES
.TP
.B quick
time method, 1e8 iterations
.TP
.B default
time method, 10 usec threshold, 5e9 iterations
.TP
.B soak
time method, 2e11 iterations, csv with date and overhead
.TP
.B smi
cycles method with SMI count, date and overhead
.TP
.B hog
cycles method with power_hog workload and overhead
.SH EXAMPLES
Quick look at the current core:
.PP
.RS
.nf
jittertest \-P quick
.fi
.RE
.PP
Cycle counter on an isolated core, matching spikes to SMIs:
.PP
.RS
.nf
jittertest \-m cycles \-\-cpu 3 \-o smi_count \-f csv > run.csv
.fi
.RE
.SH EXIT STATUS
0 on success, 1 if the measurement or the report failed, 2 for invalid
arguments.
.SH NOTES
.IP \(bu 2
Page locking and real-time priorities need CAP_IPC_LOCK and CAP_SYS_NICE.
Without them the run continues at normal priority and says so on stderr.
.IP \(bu 2
Reading MSRs needs the msr kernel module and read access to
/dev/cpu/\fIn\fR/msr.
.IP \(bu 2
Writing the report to a terminal happens inside the measured run and can
itself cause spikes; redirect stdout to a file.
.SH SEE ALSO
.BR chrt (1),
.BR taskset (1),
.BR cyclictest (8)
`, date)

	fmt.Fprint(os.Stdout, manpage)
}
