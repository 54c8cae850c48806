package evolution

import "time"

// Config holds evolution thresholds and timing.
type Config struct {
	Interval             time.Duration `json:"interval,omitempty"`
	MitosisMinQueries    int           `json:"mitosis_min_queries,omitempty"`
	MitosisMinExpertise  float64       `json:"mitosis_min_expertise,omitempty"`
	OptimizeMinQueries   int           `json:"optimize_min_queries,omitempty"`
	OptimizeMaxSuccess   float64       `json:"optimize_max_success,omitempty"`
	OptimizeCooldown     time.Duration `json:"optimize_cooldown,omitempty"`
	MinInstructionLength int           `json:"min_instruction_length,omitempty"`
	Timeout              time.Duration `json:"timeout,omitempty"`
}

// DefaultConfig returns the default evolution configuration.
func DefaultConfig() Config {
	return Config{
		Interval:             10 * time.Minute,
		MitosisMinQueries:    50,
		MitosisMinExpertise:  0.6,
		OptimizeMinQueries:   20,
		OptimizeMaxSuccess:   0.8,
		OptimizeCooldown:     24 * time.Hour,
		MinInstructionLength: 100,
		Timeout:              30 * time.Second,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Interval > 0 {
		c.Interval = source.Interval
	}
	if source.MitosisMinQueries > 0 {
		c.MitosisMinQueries = source.MitosisMinQueries
	}
	if source.MitosisMinExpertise > 0 {
		c.MitosisMinExpertise = source.MitosisMinExpertise
	}
	if source.OptimizeMinQueries > 0 {
		c.OptimizeMinQueries = source.OptimizeMinQueries
	}
	if source.OptimizeMaxSuccess > 0 {
		c.OptimizeMaxSuccess = source.OptimizeMaxSuccess
	}
	if source.OptimizeCooldown > 0 {
		c.OptimizeCooldown = source.OptimizeCooldown
	}
	if source.MinInstructionLength > 0 {
		c.MinInstructionLength = source.MinInstructionLength
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
}
