package engine

// Merge combines a profile with its traits into an effective configuration.
//
// The profile's own keys always win. Traits are applied in the order the
// profile lists them and only fill keys that are still undefined, so the first
// trait to define a key wins over later ones. traitsByName may omit traits
// that failed to load; they contribute nothing. Merge is pure and idempotent:
// merging the result's AsProfile() with the same traits yields the same
// configuration.
func Merge(profile *Profile, traitsByName map[string]*Trait) *EffectiveConfig {
	cfg := &EffectiveConfig{
		Provenance: make(map[string]string),
	}
	if profile == nil {
		return cfg
	}

	cfg.Profile = profile.Name
	cfg.Description = profile.Description
	cfg.Settings = profile.Settings.Clone()
	cfg.Traits = append([]string{}, profile.Traits...)

	for _, key := range cfg.Settings.Keys() {
		cfg.Provenance[key] = ProvenanceProfile
	}

	for _, name := range profile.Traits {
		trait, ok := traitsByName[name]
		if !ok || trait == nil {
			continue
		}
		for _, key := range trait.Settings.Keys() {
			if cfg.Settings.Has(key) {
				continue
			}
			cfg.Settings.copyKey(key, trait.Settings)
			cfg.Provenance[key] = ProvenanceTrait(name)
		}
	}

	return cfg
}

// MergeList is Merge for traits given as a slice; later duplicates of a
// trait name are ignored.
func MergeList(profile *Profile, traits []*Trait) *EffectiveConfig {
	byName := make(map[string]*Trait, len(traits))
	for _, t := range traits {
		if t == nil {
			continue
		}
		if _, seen := byName[t.Name]; !seen {
			byName[t.Name] = t
		}
	}
	return Merge(profile, byName)
}
