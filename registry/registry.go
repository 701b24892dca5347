// Package registry turns a test manifest into the collection the scheduler
// walks. Phases declared in the manifest become command invocations; embedders
// can instead build collections programmatically against the same types.
package registry

import (
	"fmt"
	"path"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testfold/testfold/types"
)

// Registry loads and owns a test collection.
type Registry struct {
	config     Config
	collection *types.Collection
	mu         sync.RWMutex
}

// Config contains registry configuration.
type Config struct {
	Log          log.Logger
	ManifestFile string
}

// NewRegistry loads the manifest and builds the collection.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.ManifestFile == "" {
		return nil, fmt.Errorf("manifest file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}

	r := &Registry{config: cfg}
	if err := r.load(cfg.ManifestFile); err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	cfg.Log.Debug("Registry loaded",
		"suites", len(r.collection.Suites()),
		"tests", len(r.collection.Tests()))
	return r, nil
}

// Collection returns the loaded collection.
func (r *Registry) Collection() *types.Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collection
}

// GetConfig returns the registry configuration.
func (r *Registry) GetConfig() Config {
	return r.config
}

func (r *Registry) load(manifestPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	manifest, err := loadManifest(manifestPath)
	if err != nil {
		return err
	}
	if len(manifest.Suites) == 0 {
		return fmt.Errorf("manifest declares no suites")
	}

	collection := types.NewCollection()
	seen := make(map[string]bool)
	baseDir := filepath.Dir(manifestPath)
	for i := range manifest.Suites {
		if err := addSuite(collection, types.NoSuite, "", baseDir, &manifest.Suites[i], seen); err != nil {
			return err
		}
	}

	r.collection = collection
	return nil
}

// addSuite registers one suite config and recurses into its children. UIDs
// are slash-joined paths of suite and test names, unique across the tree.
func addSuite(c *types.Collection, parent types.SuiteID, parentUID, baseDir string, cfg *SuiteConfig, seen map[string]bool) error {
	if cfg.Name == "" {
		return fmt.Errorf("suite under %q has no name", parentUID)
	}
	uid := path.Join(parentUID, cfg.Name)
	if seen[uid] {
		return fmt.Errorf("duplicate suite uid %q", uid)
	}
	seen[uid] = true

	dir := baseDir
	if cfg.Dir != "" {
		dir = filepath.Join(baseDir, cfg.Dir)
	}
	summary := cfg.Summary
	if summary == "" {
		summary = cfg.Name
	}

	suite := &types.Suite{
		Name:          cfg.Name,
		UID:           uid,
		Summary:       summary,
		Dir:           dir,
		SetUp:         commandPhase(cfg.SetUp, dir),
		PostSetUp:     commandPhase(cfg.PostSetUp, dir),
		TearDown:      commandPhase(cfg.TearDown, dir),
		PostCheck:     commandPhase(cfg.PostCheck, dir),
		SuiteSetUp:    commandPhase(cfg.SuiteSetUp, dir),
		SuiteTearDown: commandPhase(cfg.SuiteTearDown, dir),
		ForkAll:       cfg.ForkAll,
	}
	id := c.AddSuite(parent, suite)

	for i := range cfg.Tests {
		if err := addTest(c, id, uid, dir, &cfg.Tests[i], seen); err != nil {
			return err
		}
	}
	for i := range cfg.Suites {
		if err := addSuite(c, id, uid, dir, &cfg.Suites[i], seen); err != nil {
			return err
		}
	}
	return nil
}

func addTest(c *types.Collection, parent types.SuiteID, parentUID, suiteDir string, cfg *TestConfig, seen map[string]bool) error {
	if cfg.Name == "" {
		return fmt.Errorf("test under %q has no name", parentUID)
	}
	uid := path.Join(parentUID, cfg.Name)
	if seen[uid] {
		return fmt.Errorf("duplicate test uid %q", uid)
	}
	seen[uid] = true
	if len(cfg.Command) == 0 {
		return fmt.Errorf("test %q has no command", uid)
	}

	dir := suiteDir
	if cfg.Dir != "" {
		dir = filepath.Join(suiteDir, cfg.Dir)
	}
	summary := cfg.Summary
	if summary == "" {
		summary = cfg.Name
	}

	c.AddTest(parent, &types.Test{
		UID:     uid,
		Summary: summary,
		Dir:     dir,
		Run:     commandPhase(cfg.Command, dir),
		Traits: types.Traits{
			Broken:   cfg.Broken,
			Bug:      cfg.Bug,
			Todo:     cfg.Todo,
			Fork:     cfg.Fork,
			Title:    cfg.Title,
			TestID:   cfg.TestID,
			Platform: cfg.Platform,
			Tags:     cfg.Tags,
		},
	})
	return nil
}
