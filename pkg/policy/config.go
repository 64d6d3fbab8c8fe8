package policy

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/AndeLabs/FlowClicker/pkg/game"

	"gopkg.in/yaml.v3"
)

// Config holds the trust-scoring and reward-emission policy. The numeric
// policy lives in a YAML file rather than code so penalties and the decay
// schedule can be tuned without a rebuild.
type Config struct {
	// Trust scoring
	MaxTrustScore           int    `yaml:"maxTrustScore"`
	BotThreshold            int    `yaml:"botThreshold"`
	RateLimitPenalty        int    `yaml:"rateLimitPenalty"`
	CadencePenalty          int    `yaml:"cadencePenalty"`
	RecoveryReward          int    `yaml:"recoveryReward"`
	MinHumanIntervalSeconds uint64 `yaml:"minHumanIntervalSeconds"`
	SuperhumanStreak        int    `yaml:"superhumanStreak"`

	// Rate limiting
	RateLimitWindowSeconds uint64 `yaml:"rateLimitWindowSeconds"`
	MaxClicksPerWindow     uint32 `yaml:"maxClicksPerWindow"`

	// Reward schedule
	YearDurationSeconds uint64       `yaml:"yearDurationSeconds"`
	RewardSchedule      []RewardTier `yaml:"rewardSchedule"`
}

// RewardTier is one step of the temporal decay schedule: from the given
// elapsed year onward, each click pays TokensPerClick until the next tier.
type RewardTier struct {
	FromYear       int    `yaml:"fromYear"`
	TokensPerClick string `yaml:"tokensPerClick"`
}

// Default returns the policy shipped with the game.
func Default() *Config {
	return &Config{
		MaxTrustScore:           1000,
		BotThreshold:            300,
		RateLimitPenalty:        50,
		CadencePenalty:          30,
		RecoveryReward:          1,
		MinHumanIntervalSeconds: 1,
		SuperhumanStreak:        40,
		RateLimitWindowSeconds:  30,
		MaxClicksPerWindow:      800,
		YearDurationSeconds:     365 * 24 * 3600,
		RewardSchedule: []RewardTier{
			{FromYear: 0, TokensPerClick: "0.01"},
			{FromYear: 1, TokensPerClick: "0.004"},
			{FromYear: 2, TokensPerClick: "0.001"},
			{FromYear: 3, TokensPerClick: "0.0005"},
		},
	}
}

// Load reads a policy from a YAML file. Supports environment variable
// expansion in the form ${VAR_NAME} or ${VAR_NAME:default}.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	config := Default()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	return config, nil
}

// Validate validates the policy for common errors.
func (c *Config) Validate() error {
	if c.MaxTrustScore <= 0 {
		return fmt.Errorf("maxTrustScore must be positive, got %d", c.MaxTrustScore)
	}
	if c.BotThreshold < 0 || c.BotThreshold > c.MaxTrustScore {
		return fmt.Errorf("botThreshold must be in [0, %d], got %d", c.MaxTrustScore, c.BotThreshold)
	}
	if c.RateLimitPenalty <= 0 || c.CadencePenalty <= 0 {
		return fmt.Errorf("penalties must be positive")
	}
	if c.RecoveryReward < 0 {
		return fmt.Errorf("recoveryReward must be non-negative, got %d", c.RecoveryReward)
	}
	if c.RateLimitWindowSeconds == 0 {
		return fmt.Errorf("rateLimitWindowSeconds must be positive")
	}
	if c.MaxClicksPerWindow == 0 {
		return fmt.Errorf("maxClicksPerWindow must be positive")
	}
	if c.SuperhumanStreak <= 0 {
		return fmt.Errorf("superhumanStreak must be positive, got %d", c.SuperhumanStreak)
	}
	if c.YearDurationSeconds == 0 {
		return fmt.Errorf("yearDurationSeconds must be positive")
	}

	if len(c.RewardSchedule) == 0 {
		return fmt.Errorf("rewardSchedule must have at least one tier")
	}
	if c.RewardSchedule[0].FromYear != 0 {
		return fmt.Errorf("first reward tier must start at year 0, got %d", c.RewardSchedule[0].FromYear)
	}
	for i, tier := range c.RewardSchedule {
		if i > 0 && tier.FromYear <= c.RewardSchedule[i-1].FromYear {
			return fmt.Errorf("reward tiers must have strictly increasing fromYear")
		}
		if _, err := game.ParseTokenAmount(tier.TokensPerClick); err != nil {
			return fmt.Errorf("reward tier %d: %w", i, err)
		}
	}

	return nil
}

// Rates parses the schedule's token amounts into fixed-point integers,
// indexed by elapsed year (the last tier repeats for all later years).
func (c *Config) Rates() ([]*big.Int, error) {
	last := c.RewardSchedule[len(c.RewardSchedule)-1].FromYear
	rates := make([]*big.Int, last+1)

	for _, tier := range c.RewardSchedule {
		amount, err := game.ParseTokenAmount(tier.TokensPerClick)
		if err != nil {
			return nil, fmt.Errorf("reward tier year %d: %w", tier.FromYear, err)
		}
		for y := tier.FromYear; y <= last; y++ {
			rates[y] = amount
		}
	}

	return rates, nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		parts := strings.SplitN(key, ":", 2)
		varName := parts[0]
		defaultValue := ""
		if len(parts) == 2 {
			defaultValue = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}
