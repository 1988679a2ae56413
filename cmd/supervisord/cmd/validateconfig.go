package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/config"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/slurmvalidate"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate the supervisor's config file without starting it",
	Long:  `Load the config file, run its structural validation, and confirm every cluster's Slurm ceiling resolves.`,
	RunE:  runValidateConfig,
}

func runValidateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	for name, hpc := range cfg.HPCConfigMap {
		ceiling, err := slurmvalidate.ComputeCeiling(hpc.SlurmInputRules, hpc.SlurmGlobalCap)
		if err != nil {
			return fmt.Errorf("hpc %q: resolving slurm ceiling: %w", name, err)
		}
		fmt.Printf("hpc %-20s capacity=%-4d community=%-5v nodes<=%-4d cpus<=%-4d mem_total<=%-12d walltime<=%.0fs\n",
			name, hpc.JobPoolCapacity, hpc.IsCommunityAccount, ceiling.Nodes, ceiling.CPUsPerTask, ceiling.MemTotal, ceiling.Walltime)
	}

	fmt.Println("config OK")
	return nil
}
