// Package config loads the supervisor's static configuration: the per-HPC
// cluster map, the maintainer/container/kernel maps, and process-wide
// settings (queue consume period, Redis/Postgres DSNs, Globus client id).
//
// None of it is mutated at runtime; the scheduler and maintainers only read
// from the structures this package produces.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// HPCConfig describes one remote cluster the supervisor can submit to.
type HPCConfig struct {
	Name               string            `mapstructure:"name"`
	IP                 string            `mapstructure:"ip"`
	Port               int               `mapstructure:"port"`
	RootPath           string            `mapstructure:"root_path"`
	JobPoolCapacity    int               `mapstructure:"job_pool_capacity"`
	IsCommunityAccount bool              `mapstructure:"is_community_account"`
	CommunityLogin     *CommunityLogin   `mapstructure:"community_login"`
	Globus             *GlobusConfig     `mapstructure:"globus"`
	SlurmInputRules    SlurmRules        `mapstructure:"slurm_input_rules"`
	SlurmGlobalCap     SlurmRules        `mapstructure:"slurm_global_cap"`
	Mount              map[string]string `mapstructure:"mount"`
}

// CommunityLogin holds the shared account's credentials for a community-mode HPC.
type CommunityLogin struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// GlobusConfig identifies the Globus collection/endpoint fronting an HPC.
type GlobusConfig struct {
	EndpointID string `mapstructure:"endpoint_id"`
	RootPath   string `mapstructure:"root_path"`
}

// SlurmRules is a ceiling on resource requests; a zero field means "no rule"
// (the dimension is bounded only by the global default ceiling).
type SlurmRules struct {
	Nodes       int    `mapstructure:"nodes"`
	Tasks       int    `mapstructure:"tasks"`
	CPUsPerTask int    `mapstructure:"cpus_per_task"`
	MemPerCPU   string `mapstructure:"mem_per_cpu"`
	MemTotal    string `mapstructure:"mem_total"`
	GPUs        int    `mapstructure:"gpus"`
	Walltime    string `mapstructure:"walltime"`
}

// MaintainerConfig selects which maintainer variant a job uses and its
// default HPC when the submitter does not name one.
type MaintainerConfig struct {
	Maintainer string `mapstructure:"maintainer"`
	DefaultHPC string `mapstructure:"default_hpc"`
}

// ContainerConfig names the Singularity image used for a given cluster.
type ContainerConfig struct {
	Image     string `mapstructure:"image"`
	CVMFSMode bool   `mapstructure:"cvmfs_mode"`
}

// KernelConfig carries the environment bootstrap lines injected ahead of a
// job's execution stage (module loads, conda activation, etc.).
type KernelConfig struct {
	InitLines []string `mapstructure:"init_lines"`
}

// Settings is process-wide configuration read once at startup.
type Settings struct {
	QueueConsumePeriod time.Duration `mapstructure:"queue_consume_time_period_in_seconds"`
	RedisAddr          string        `mapstructure:"redis_addr"`
	PostgresDSN        string        `mapstructure:"postgres_dsn"`
	GlobusClientID     string        `mapstructure:"globus_client_id"`
	ShutdownGrace      time.Duration `mapstructure:"shutdown_grace_seconds"`
}

// Config is the fully-loaded, validated configuration surface the core consumes.
type Config struct {
	Settings            Settings
	HPCConfigMap        map[string]HPCConfig
	MaintainerConfigMap map[string]MaintainerConfig
	ContainerConfigMap  map[string]ContainerConfig
	KernelConfigMap     map[string]KernelConfig
}

// Load reads configPath (YAML) via viper, overlays environment variables
// prefixed CYBERGIS_, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("CYBERGIS")
	v.AutomaticEnv()

	v.SetDefault("queue_consume_time_period_in_seconds", 5)
	v.SetDefault("shutdown_grace_seconds", 30)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}

	var raw struct {
		QueueConsumeSeconds  int                         `mapstructure:"queue_consume_time_period_in_seconds"`
		ShutdownGraceSeconds int                         `mapstructure:"shutdown_grace_seconds"`
		RedisAddr            string                      `mapstructure:"redis_addr"`
		PostgresDSN          string                      `mapstructure:"postgres_dsn"`
		GlobusClientID       string                      `mapstructure:"globus_client_id"`
		HPC                  map[string]HPCConfig        `mapstructure:"hpc"`
		Maintainer           map[string]MaintainerConfig `mapstructure:"maintainer"`
		Container            map[string]ContainerConfig  `mapstructure:"container"`
		Kernel               map[string]KernelConfig     `mapstructure:"kernel"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, errors.Wrap(err, "unmarshalling config")
	}

	cfg := &Config{
		Settings: Settings{
			QueueConsumePeriod: time.Duration(raw.QueueConsumeSeconds) * time.Second,
			ShutdownGrace:      time.Duration(raw.ShutdownGraceSeconds) * time.Second,
			RedisAddr:          raw.RedisAddr,
			PostgresDSN:        raw.PostgresDSN,
			GlobusClientID:     raw.GlobusClientID,
		},
		HPCConfigMap:        raw.HPC,
		MaintainerConfigMap: raw.Maintainer,
		ContainerConfigMap:  raw.Container,
		KernelConfigMap:     raw.Kernel,
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks that every configured HPC and maintainer is internally consistent.
func (c *Config) Validate() error {
	if len(c.HPCConfigMap) == 0 {
		return errors.New("at least one HPC must be configured")
	}
	for name, hpc := range c.HPCConfigMap {
		if hpc.RootPath == "" {
			return fmt.Errorf("hpc %q: root_path is required", name)
		}
		if hpc.JobPoolCapacity < 0 {
			return fmt.Errorf("hpc %q: job_pool_capacity must be >= 0", name)
		}
		if hpc.IsCommunityAccount && hpc.CommunityLogin == nil {
			return fmt.Errorf("hpc %q: is_community_account requires community_login", name)
		}
	}
	for name, m := range c.MaintainerConfigMap {
		if _, ok := c.HPCConfigMap[m.DefaultHPC]; m.DefaultHPC != "" && !ok {
			return fmt.Errorf("maintainer %q: default_hpc %q is not configured", name, m.DefaultHPC)
		}
	}
	return nil
}

// Capacity returns the admission capacity for cluster name, or 0 if unknown.
func (c *Config) Capacity(hpc string) int {
	cfg, ok := c.HPCConfigMap[hpc]
	if !ok {
		return 0
	}
	return cfg.JobPoolCapacity
}
