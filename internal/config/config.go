// Package config holds the pipeline-wide options the driver threads
// into every stage, mirroring how wazevo.NewCompiler takes a single
// Config value rather than a pile of constructor parameters.
package config

// OptLevel selects how much of the C5 pass pipeline runs.
type OptLevel int

const (
	// O0 disables the optimizer entirely: instruction selection runs
	// directly against the front end's output.
	O0 OptLevel = iota
	// O1 runs the full fixpoint pipeline (internal/mir/opt.RunPipeline).
	O1
)

// Config is constructed once by the driver and passed by value into
// every pipeline stage that needs it.
type Config struct {
	OptLevel OptLevel

	// Parallelize gates the optional loop-parallelizer pass (spec §5).
	// Off by default: the transform only pays off above a thread-count
	// the driver has no way to know about at compile time.
	Parallelize bool

	// CacheSize/CacheMaxArgs are carried here but not read by any
	// stage: the cache pass and the eligibility check use
	// internal/sysyapi's compiled-in constants directly.
	CacheSize    int
	CacheMaxArgs int
}

// Default returns the O1 configuration used when no flags override it.
func Default() Config {
	return Config{OptLevel: O1}
}
