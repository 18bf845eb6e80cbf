package config

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LifecyclePolicy is the part of the lifecycle configuration that may change
// while the process runs.
type LifecyclePolicy struct {
	CooloffDays int `mapstructure:"cooloffDays"`
}

type LifecyclePolicyHolder struct {
	current atomic.Value // holds LifecyclePolicy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy LifecyclePolicy) *LifecyclePolicyHolder {
	holder := &LifecyclePolicyHolder{}
	holder.current.Store(policy)
	return holder
}

// NewLifecyclePolicyHolder reads lifecycle.yml (or LIFECYCLE_POLICY_FILE) when
// present and watches it for changes. Environment values are the defaults.
func NewLifecyclePolicyHolder(cfg Config) (*LifecyclePolicyHolder, error) {
	defaults := LifecyclePolicy{CooloffDays: cfg.Lifecycle.CooloffDays}
	if err := validateLifecyclePolicy(defaults); err != nil {
		return nil, err
	}

	v := viper.New()
	if path := strings.TrimSpace(cfg.Lifecycle.PolicyFile); path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return NewStaticPolicyHolder(defaults), nil
		}
		v.SetConfigFile(path)
		v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))
	} else {
		v.SetConfigName("lifecycle")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/numberpool")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("NUMBERPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("lifecycle.cooloffDays", defaults.CooloffDays)

	holder := &LifecyclePolicyHolder{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		holder.current.Store(defaults)
		return holder, nil
	}

	var policy LifecyclePolicy
	if err := v.UnmarshalKey("lifecycle", &policy); err != nil {
		return nil, err
	}
	if err := validateLifecyclePolicy(policy); err != nil {
		return nil, err
	}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated LifecyclePolicy
		if err := v.UnmarshalKey("lifecycle", &updated); err != nil {
			log.Printf("[lifecycle-policy] reload failed: %v", err)
			return
		}
		if err := holder.Set(updated); err != nil {
			log.Printf("[lifecycle-policy] invalid policy ignored: %v", err)
			return
		}
		log.Printf("[lifecycle-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *LifecyclePolicyHolder) Get() LifecyclePolicy {
	return h.current.Load().(LifecyclePolicy)
}

// Set swaps in policy after validating it.
func (h *LifecyclePolicyHolder) Set(policy LifecyclePolicy) error {
	if err := validateLifecyclePolicy(policy); err != nil {
		return err
	}
	h.current.Store(policy)
	return nil
}

// CooloffWindowDays reports the current cooloff window.
func (h *LifecyclePolicyHolder) CooloffWindowDays() int {
	return h.Get().CooloffDays
}

func validateLifecyclePolicy(policy LifecyclePolicy) error {
	if policy.CooloffDays < 0 {
		return errors.New("lifecycle.cooloffDays cannot be negative")
	}
	return nil
}
