// Package journal persists test outcomes between runs, so a later run can
// resume past previously passed tests and select on recorded execution times.
package journal

import (
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/testfold/testfold/types"
)

// timesLimit bounds how many execution-time samples are retained per test.
const timesLimit = 10

// entry is the persisted record for one test.
type entry struct {
	State   string    `yaml:"state"`
	Times   []float64 `yaml:"times,omitempty"`
	Average float64   `yaml:"average,omitempty"`
}

type document struct {
	Tests map[string]*entry `yaml:"tests"`
}

// FileJournal stores the journal as a YAML file, rewritten after every
// recorded result so a crashed run loses at most the in-flight test.
type FileJournal struct {
	mu   sync.Mutex
	path string
	doc  document
	log  log.Logger
}

// Open loads the journal at path, creating an empty one if the file does not
// exist yet.
func Open(path string, logger log.Logger) (*FileJournal, error) {
	if logger == nil {
		logger = log.New()
	}
	j := &FileJournal{
		path: path,
		doc:  document{Tests: make(map[string]*entry)},
		log:  logger,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read journal %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &j.doc); err != nil {
		return nil, fmt.Errorf("failed to parse journal %s: %w", path, err)
	}
	if j.doc.Tests == nil {
		j.doc.Tests = make(map[string]*entry)
	}
	return j, nil
}

// Path returns the backing file's path.
func (j *FileJournal) Path() string {
	return j.path
}

// Load seeds each known test's history with its journalled state, so resume
// mode can skip previously passed tests and summaries can show prior results.
func (j *FileJournal) Load(c *types.Collection) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	loaded := 0
	for _, t := range c.Tests() {
		e, ok := j.doc.Tests[t.UID]
		if !ok {
			continue
		}
		if state := types.ParseState(e.State); state != types.StateNone {
			t.SeedHistory(state)
			loaded++
		}
	}
	j.log.Debug("Journal loaded", "path", j.path, "tests", loaded)
	return nil
}

// Record persists the latest outcome of t, folding its body execution time
// into the retained samples and their running average.
func (j *FileJournal) Record(t *types.Test) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.doc.Tests[t.UID]
	if !ok {
		e = &entry{}
		j.doc.Tests[t.UID] = e
	}
	e.State = t.State().String()

	if rec := t.RunRecord(); rec != nil && rec.Duration > 0 {
		e.Times = append(e.Times, rec.Duration.Seconds())
		if len(e.Times) > timesLimit {
			e.Times = e.Times[len(e.Times)-timesLimit:]
		}
		sum := 0.0
		for _, v := range e.Times {
			sum += v
		}
		e.Average = sum / float64(len(e.Times))
	}

	return j.save()
}

// AverageTime returns the recorded average execution time in seconds.
func (j *FileJournal) AverageTime(uid string) (float64, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.doc.Tests[uid]
	if !ok || len(e.Times) == 0 {
		return 0, false
	}
	return e.Average, true
}

func (j *FileJournal) save() error {
	data, err := yaml.Marshal(&j.doc)
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}
	if err := os.WriteFile(j.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write journal %s: %w", j.path, err)
	}
	return nil
}
