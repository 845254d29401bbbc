package emitter

import "strconv"

// Config mirrors compregister.Compiler's constructor-option pattern: a
// small typed struct assembled once from a free-form key-value bag
// rather than a constellation of constructor parameters.
type Config struct {
	EmitCompact     bool
	EmitSemicompact bool
	Verbosity       int
	MaxLoops        int
	Paranoid        bool
	OpDebug         bool
	HexDump         bool
}

// NewConfig parses the option bag. Unrecognized keys are
// ignored (the bag is free-form by design); a value that fails to
// parse for a key that expects one falls back to that key's zero
// effect rather than failing construction — options are cosmetic/
// diagnostic knobs, never load-bearing for correctness.
func NewConfig(opts map[string]string) Config {
	cfg := Config{MaxLoops: 10}
	for k, v := range opts {
		switch k {
		case "emit-compact":
			cfg.EmitCompact = true
		case "emit-semicompact":
			cfg.EmitSemicompact = true
		case "emitter-verbosity":
			if n, err := strconv.Atoi(v); err == nil {
				cfg.Verbosity = n
			}
		case "emitter-max-loops":
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				cfg.MaxLoops = n
			}
		case "emitter-paranoid":
			cfg.Paranoid = true
		case "emitter-op-debug":
			cfg.OpDebug = true
		case "hexdump":
			cfg.HexDump = true
		}
	}
	return cfg
}
