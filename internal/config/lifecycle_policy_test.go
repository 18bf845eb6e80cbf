package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLifecyclePolicyHolderFallsBackToEnvDefaults(t *testing.T) {
	cfg := Config{Lifecycle: LifecycleConfig{
		CooloffDays: 45,
		PolicyFile:  filepath.Join(t.TempDir(), "missing.yml"),
	}}

	holder, err := NewLifecyclePolicyHolder(cfg)
	require.NoError(t, err)
	require.Equal(t, 45, holder.CooloffWindowDays())
}

func TestLifecyclePolicyHolderReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifecycle.yml")
	require.NoError(t, os.WriteFile(path, []byte("lifecycle:\n  cooloffDays: 30\n"), 0o600))

	holder, err := NewLifecyclePolicyHolder(Config{Lifecycle: LifecycleConfig{
		CooloffDays: 90,
		PolicyFile:  path,
	}})
	require.NoError(t, err)
	require.Equal(t, 30, holder.CooloffWindowDays())
}

func TestLifecyclePolicyRejectsNegativeWindow(t *testing.T) {
	_, err := NewLifecyclePolicyHolder(Config{Lifecycle: LifecycleConfig{CooloffDays: -1}})
	require.Error(t, err)
}

func TestStaticPolicyHolder(t *testing.T) {
	holder := NewStaticPolicyHolder(LifecyclePolicy{CooloffDays: 0})
	require.Equal(t, 0, holder.CooloffWindowDays())
}

func TestPolicyHolderSetValidates(t *testing.T) {
	holder := NewStaticPolicyHolder(LifecyclePolicy{CooloffDays: 90})
	require.Error(t, holder.Set(LifecyclePolicy{CooloffDays: -3}))
	require.Equal(t, 90, holder.CooloffWindowDays())
	require.NoError(t, holder.Set(LifecyclePolicy{CooloffDays: 0}))
	require.Equal(t, 0, holder.CooloffWindowDays())
}
