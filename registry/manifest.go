package registry

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"gopkg.in/yaml.v3"

	"github.com/testfold/testfold/types"
)

// Manifest is the YAML document describing a test collection. Suites nest
// arbitrarily; each phase is an argv to execute in the suite's directory.
type Manifest struct {
	Suites []SuiteConfig `yaml:"suites"`
}

// SuiteConfig describes one suite and its children.
type SuiteConfig struct {
	Name    string `yaml:"name"`
	Summary string `yaml:"summary"`
	Dir     string `yaml:"dir"`

	SetUp         []string `yaml:"setup,omitempty"`
	PostSetUp     []string `yaml:"post_setup,omitempty"`
	TearDown      []string `yaml:"teardown,omitempty"`
	PostCheck     []string `yaml:"post_check,omitempty"`
	SuiteSetUp    []string `yaml:"suite_setup,omitempty"`
	SuiteTearDown []string `yaml:"suite_teardown,omitempty"`

	ForkAll bool `yaml:"fork_all,omitempty"`

	Suites []SuiteConfig `yaml:"suites,omitempty"`
	Tests  []TestConfig  `yaml:"tests,omitempty"`
}

// TestConfig describes one test.
type TestConfig struct {
	Name    string   `yaml:"name"`
	Summary string   `yaml:"summary"`
	Command []string `yaml:"command"`
	Dir     string   `yaml:"dir,omitempty"`

	Broken   bool              `yaml:"broken,omitempty"`
	Bug      bool              `yaml:"bug,omitempty"`
	Todo     bool              `yaml:"todo,omitempty"`
	Fork     bool              `yaml:"fork,omitempty"`
	Title    string            `yaml:"title,omitempty"`
	TestID   string            `yaml:"test_id,omitempty"`
	Platform string            `yaml:"platform,omitempty"`
	Tags     map[string]string `yaml:"tags,omitempty"`
}

// loadManifest reads and parses the manifest file.
func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest file: %w", err)
	}
	return &m, nil
}

// commandPhase wraps an argv as a phase function. The command runs in dir,
// its combined output is attached to the failure when it exits non-zero. An
// empty argv is a no-op phase.
func commandPhase(argv []string, dir string) types.PhaseFunc {
	if len(argv) == 0 {
		return nil
	}
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = dir
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &types.Failure{
				Kind:    "command",
				Message: fmt.Sprintf("%v: %v\n%s", argv, err, out.String()),
			}
		}
		return nil
	}
}
