package config

// Spec is the immutable launch description of one daemon: the executable
// name and the exact argument list it receives.
type Spec struct {
	Name string
	Args []string
}

// Specs builds the launch table for the configured build mode. Base args
// come first, then the mode-specific ones. Empty arguments are dropped.
func (c *Config) Specs() []Spec {
	specs := make([]Spec, 0, len(c.Processes))
	for _, p := range c.Processes {
		extra := p.ProdArgs
		if c.Supervisor.Mode == ModeDev {
			extra = p.DevArgs
		}

		args := make([]string, 0, len(p.Args)+len(extra))
		for _, a := range append(append([]string(nil), p.Args...), extra...) {
			if a == "" {
				continue
			}
			args = append(args, a)
		}
		specs = append(specs, Spec{Name: p.Name, Args: args})
	}
	return specs
}
