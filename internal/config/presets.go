package config

import "sort"

var Presets = map[string]map[string]*Config{
	"bouncing_ball": {
		"drop":    preset("bouncing_ball", "", 0.005, 3.0, map[string]float64{"height": 1, "restitution": 0.9}),
		"plastic": preset("bouncing_ball", "", 0.005, 2.0, map[string]float64{"height": 1, "restitution": 0}),
		"thrown":  preset("bouncing_ball", "", 0.002, 4.0, map[string]float64{"height": 0.5, "velocity": 4, "restitution": 0.8}),
	},
	"impacting_oscillator": {
		"forced":  preset("impacting_oscillator", "", 0.002, 20.0, nil),
		"grazing": preset("impacting_oscillator", "", 0.002, 20.0, map[string]float64{"gap": 0.9, "amplitude": 3}),
	},
	"ball_chain": {
		"stack":         preset("ball_chain", "", 0.005, 3.0, nil),
		"tall":          preset("ball_chain", "", 0.002, 5.0, map[string]float64{"count": 6, "spacing": 0.3}),
		"velocity_only": preset("ball_chain", "moreau_jean", 0.005, 3.0, nil),
	},
	"relay_oscillator": {
		"sliding": preset("relay_oscillator", "", 0.01, 5.0, nil),
		"far":     preset("relay_oscillator", "", 0.01, 10.0, map[string]float64{"x0": 3, "x1": -1}),
	},
}

func preset(model, integrator string, dt, duration float64, params map[string]float64) *Config {
	cfg := DefaultConfig()
	cfg.Model = model
	cfg.Integrator = integrator
	cfg.Dt = dt
	cfg.Duration = duration
	cfg.Params = params
	return cfg
}

// GetPreset returns a copy of the named preset, nil when it does not exist.
func GetPreset(model, name string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[name]
	if !ok {
		return nil
	}
	cp := *cfg
	if cfg.Params != nil {
		cp.Params = make(map[string]float64, len(cfg.Params))
		for k, v := range cfg.Params {
			cp.Params[k] = v
		}
	}
	return &cp
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
