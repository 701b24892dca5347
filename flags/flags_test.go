package flags

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestUniqueFlags asserts that no flag names or env vars collide.
func TestUniqueFlags(t *testing.T) {
	seenNames := make(map[string]struct{})
	seenEnvVars := make(map[string]struct{})
	for _, flag := range Flags {
		name := flag.Names()[0]
		_, ok := seenNames[name]
		assert.False(t, ok, "flag name %s used twice", name)
		seenNames[name] = struct{}{}

		envFlag, ok := flag.(interface {
			GetEnvVars() []string
		})
		if !ok {
			continue
		}
		for _, envVar := range envFlag.GetEnvVars() {
			_, ok := seenEnvVars[envVar]
			assert.False(t, ok, "env var %s used twice", envVar)
			seenEnvVars[envVar] = struct{}{}
		}
	}
}

// TestEnvVarFormat asserts that flags have the correct envvar pattern, except
// the hidden worker flag which is never set from the environment.
func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		name := flag.Names()[0]
		if name == WorkerTest.Name {
			continue
		}
		t.Run(name, func(t *testing.T) {
			envFlag, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvFlag")
			envVars := envFlag.GetEnvVars()
			require.Len(t, envVars, 1)
			want := EnvVarPrefix + "_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
			assert.Equal(t, want, envVars[0])
		})
	}
}

func TestManifestIsOnlyRequiredFlag(t *testing.T) {
	for _, flag := range Flags {
		name := flag.Names()[0]
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok, name)
		assert.Equal(t, name == Manifest.Name, reqFlag.IsRequired(), name)
	}
}

func TestWorkerFlagIsHidden(t *testing.T) {
	assert.True(t, WorkerTest.Hidden)
	assert.False(t, slices.Contains(requiredFlags, cli.Flag(WorkerTest)))
}

func TestCheckRequired(t *testing.T) {
	app := &cli.App{
		Flags: Flags,
		Action: func(ctx *cli.Context) error {
			return CheckRequired(ctx)
		},
	}
	assert.NoError(t, app.Run([]string{"testfold", "--manifest", "tests.yaml"}))
	assert.Error(t, app.Run([]string{"testfold"}))
}
