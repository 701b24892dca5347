package reporting

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/acarl005/stripansi"

	"github.com/testfold/testfold/types"
)

// FileLogReporter mirrors the terminal output into a plain-text log file,
// stripping any ANSI colour codes on the way through.
type FileLogReporter struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	mode Mode
}

// NewFileLogReporter opens (and truncates) path for the run log.
func NewFileLogReporter(path string) (*FileLogReporter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log %s: %w", path, err)
	}
	return &FileLogReporter{f: f, w: bufio.NewWriter(f), mode: ModeRun}, nil
}

func (r *FileLogReporter) write(format string, args ...interface{}) {
	fmt.Fprintf(r.w, "%s", stripansi.Strip(fmt.Sprintf(format, args...)))
}

func (r *FileLogReporter) SetMode(mode Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
	switch mode {
	case ModeRunSummary:
		r.write("\nRun summary\n")
	case ModeFailSummary:
		r.write("\nFailure summary\n")
	}
}

func (r *FileLogReporter) SetField(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write("%s: %s\n", name, value)
}

func (r *FileLogReporter) EnterSuite(s *types.Suite, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write("%s%s\n", indent(level), s.Summary)
}

func (r *FileLogReporter) LeaveSuite(s *types.Suite, level int) {}

func (r *FileLogReporter) AnnounceTestStart(t *types.Test, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write("%s%3d: %s ... ", indent(level), t.Number, t.Summary)
}

func (r *FileLogReporter) PutResult(t *types.Test) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code := t.Result().ReportCode()
	r.write("%s\n", code)
	if rec := t.RunRecord(); rec != nil && code.IsProblem() {
		if _, step := rec.PhaseRecord(); step != nil && step.Exc != nil {
			r.write("%s\n", step.Exc.Format())
		}
	}
}

func (r *FileLogReporter) SummariseResult(t *types.Test, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write("%s%3d: %s %s\n", indent(level), t.Number, t.Summary, t.Result().ReportCode())
	if r.mode == ModeFailSummary {
		if rec := t.RunRecord(); rec != nil {
			if _, step := rec.PhaseRecord(); step != nil && step.Exc != nil {
				r.write("%s\n", step.Exc.Format())
			}
		}
	}
}

func (r *FileLogReporter) SummariseSuiteResult(s *types.Suite, result types.Result, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write("%s%s %s\n", indent(level), s.Summary, result.ReportCode())
}

// Finish flushes and closes the log file.
func (r *FileLogReporter) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Flush(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}

var _ Reporter = (*FileLogReporter)(nil)
