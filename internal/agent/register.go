package agent

import (
	"time"

	"obra/internal/registry"
	"obra/internal/types"
)

func cfgStr(cfg map[string]any, key string) string {
	v, _ := cfg[key].(string)
	return v
}

func cfgStrs(cfg map[string]any, key string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, el := range v {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func cfgInt(cfg map[string]any, key string) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func cfgBool(cfg map[string]any, key string) bool {
	v, _ := cfg[key].(bool)
	return v
}

// RegisterDefaults installs the built-in executor providers.
func RegisterDefaults(reg *registry.AgentRegistry) {
	reg.Register("headless", func(cfg map[string]any) (types.AgentSession, error) {
		hc := HeadlessConfig{
			Binary:            cfgStr(cfg, "binary"),
			Workspace:         cfgStr(cfg, "workspace"),
			Args:              cfgStrs(cfg, "args"),
			BypassPermissions: cfgBool(cfg, "bypass_permissions"),
		}
		if secs := cfgInt(cfg, "response_timeout_seconds"); secs > 0 {
			hc.ResponseTimeout = time.Duration(secs) * time.Second
		}
		return NewHeadlessSession(hc)
	})

	reg.Register("script", func(cfg map[string]any) (types.AgentSession, error) {
		timeout := time.Duration(cfgInt(cfg, "response_timeout_seconds")) * time.Second
		return NewScriptSession(cfgStr(cfg, "binary"), cfgStrs(cfg, "args"), cfgStr(cfg, "workspace"), timeout)
	})
}
