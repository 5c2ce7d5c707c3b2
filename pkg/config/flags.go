package config

import (
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --upstream
// on both "parley serve" and the standalone parleyproxy binary).
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "proxy.upstream").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddDurationFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagProxyListen      = "proxy-listen"
	FlagUpstream         = "upstream"
	FlagModel            = "model"
	FlagSystemPrompt     = "system-prompt"
	FlagProxyIdleTimeout = "proxy-idle-timeout"
	FlagProxyTarget      = "proxy-target"
	FlagClientIdle       = "client-idle-timeout"
	FlagEventsProvider   = "events-provider"
	FlagEventsBrokers    = "events-brokers"
	FlagEventsTopic      = "events-topic"
)

// ServeFlags is the registry shared by "parley serve" and parleyproxy.
var ServeFlags = FlagSet{
	FlagProxyListen:      {Name: "listen", Shorthand: "l", ViperKey: "proxy.listen", Description: "Address for the proxy to listen on"},
	FlagUpstream:         {Name: "upstream", Shorthand: "u", ViperKey: "proxy.upstream", Description: "Upstream chat-completions base URL"},
	FlagModel:            {Name: "model", Shorthand: "m", ViperKey: "proxy.model", Description: "Model requested from the upstream"},
	FlagSystemPrompt:     {Name: "system-prompt", ViperKey: "proxy.system_prompt", Description: "System instruction prepended to every conversation"},
	FlagProxyIdleTimeout: {Name: "idle-timeout", ViperKey: "proxy.idle_timeout", Description: "Close an upstream stream after this long without bytes (0 disables)"},
	FlagEventsProvider:   {Name: "events-provider", ViperKey: "events.provider", Description: "Exchange event backend (none, kafka)"},
	FlagEventsBrokers:    {Name: "events-brokers", ViperKey: "events.brokers", Description: "Comma separated Kafka broker addresses"},
	FlagEventsTopic:      {Name: "events-topic", ViperKey: "events.topic", Description: "Kafka topic for exchange events"},
}

// ChatFlags is the registry used by "parley chat".
var ChatFlags = FlagSet{
	FlagProxyTarget: {Name: "proxy-target", Shorthand: "p", ViperKey: "client.proxy_target", Description: "Parley proxy URL"},
	FlagClientIdle:  {Name: "idle-timeout", ViperKey: "client.idle_timeout", Description: "Abort a reply after this long without bytes (0 disables)"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet. The
// default is the config default for the flag's viper key.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	addFlag(cmd, fs, key, target, cmd.Flags().StringVarP, (*viper.Viper).GetString)
}

// AddDurationFlag registers a duration flag on cmd from the given FlagSet.
func AddDurationFlag(cmd *cobra.Command, fs FlagSet, key string, target *time.Duration) {
	addFlag(cmd, fs, key, target, cmd.Flags().DurationVarP, (*viper.Viper).GetDuration)
}

// AddStringSliceFlag registers a comma separated list flag on cmd from the
// given FlagSet.
func AddStringSliceFlag(cmd *cobra.Command, fs FlagSet, key string, target *[]string) {
	addFlag(cmd, fs, key, target, cmd.Flags().StringSliceVarP, GetStringList)
}

// addFlag looks key up in fs and registers it through define. Keys missing
// from fs are ignored.
func addFlag[T any](
	cmd *cobra.Command,
	fs FlagSet,
	key string,
	target *T,
	define func(p *T, name, shorthand string, value T, usage string),
	get func(*viper.Viper, string) T,
) {
	def, ok := fs[key]
	if !ok {
		return
	}
	define(target, def.Name, def.Shorthand, get(defaults(), def.ViperKey), def.Description)
}

// BindRegisteredFlags connects flags already added to cmd to their viper keys,
// putting them on top of the precedence chain. Call it after InitViper.
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, keys []string) {
	for _, key := range keys {
		def, ok := fs[key]
		if !ok {
			continue
		}
		if f := cmd.Flags().Lookup(def.Name); f != nil {
			_ = v.BindPFlag(def.ViperKey, f)
		}
	}
}

// defaults holds only the built-in defaults, for flag default values.
var defaults = sync.OnceValue(func() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
})
