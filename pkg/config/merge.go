package config

import "dario.cat/mergo"

// mergeThresholds merges user-supplied thresholds over the built-in
// defaults — zero-valued user fields keep the default (mergo.WithOverride
// treats a non-zero source field as an override), the same
// "start from defaults, merge user config on top" shape the teacher
// uses for its queue config in loader.go.
func mergeThresholds(user *Thresholds) (Thresholds, error) {
	merged := DefaultThresholds()
	if user == nil {
		return merged, nil
	}
	if err := mergo.Merge(&merged, user, mergo.WithOverride); err != nil {
		return Thresholds{}, err
	}
	return merged, nil
}

// mergeDefaults merges user-supplied ambient defaults (worker count,
// search budget, report interval) over the built-in defaults.
func mergeDefaults(user *Defaults) (Defaults, error) {
	merged := defaultDefaults()
	if user == nil {
		return merged, nil
	}
	if err := mergo.Merge(&merged, user, mergo.WithOverride); err != nil {
		return Defaults{}, err
	}
	return merged, nil
}
