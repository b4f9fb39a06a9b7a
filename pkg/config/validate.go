package config

import (
	"fmt"
)

// set defaults, fail fast on critical errors
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}
	if err := cfg.ValidateConfig(); err != nil {
		return err
	}
	if cfg.Store.Mode == StoreModePebble && eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, AROOSI_CHAT_DB_PATH env, or server.db_path in config")
	}
	if len(cfg.Server.APIKeys.Frontend) > 0 && len(cfg.Server.SigningKeys) == 0 {
		return fmt.Errorf("frontend api keys configured without server.signing_keys: user identity could not be verified")
	}

	// a key may carry only one role
	seen := make(map[string]string)
	roles := map[string][]string{
		"backend":  cfg.Server.APIKeys.Backend,
		"frontend": cfg.Server.APIKeys.Frontend,
		"admin":    cfg.Server.APIKeys.Admin,
	}
	for role, keys := range roles {
		for _, k := range keys {
			if prev, ok := seen[k]; ok && prev != role {
				return fmt.Errorf("api key configured for both %s and %s roles", prev, role)
			}
			seen[k] = role
		}
	}
	return nil
}
