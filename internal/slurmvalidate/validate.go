// Package slurmvalidate implements the Slurm Config Validator component
// (spec §4.I): computing the effective resource ceiling for a job as the
// element-wise minimum of the cluster's configured rules, the global cap,
// and a hard-coded default, then rejecting any requested job.Slurm value
// that exceeds it.
//
// The exceeds-threshold/Reason-string shape is grounded on
// gwennacupicop-jennah/internal/router/classifier.go's
// exceedsThreshold/RoutingDecision pattern, adapted from "pick a service
// tier" to "reject or accept against a ceiling".
package slurmvalidate

import (
	"fmt"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/config"
)

// Default hard-coded ceilings (spec §4.I), used as the last element in the
// element-wise minimum regardless of cluster/global configuration.
const (
	DefaultMaxNodes       = 50
	DefaultMaxTasks       = 50
	DefaultMaxCPUsPerTask = 50
	DefaultMaxMemPerCPU   = "10G"
	DefaultMaxMemTotal    = "50G"
	DefaultMaxGPUs        = 20
	DefaultMaxWalltime    = "10:00:00"
)

// Ceiling is the effective, fully-resolved resource ceiling for one job
// submission, in native units (bytes, seconds).
type Ceiling struct {
	Nodes       int
	Tasks       int
	CPUsPerTask int
	MemPerCPU   int64
	MemTotal    int64
	GPUs        int
	Walltime    float64
}

// Request is the parsed form of a job's requested Slurm resources.
type Request struct {
	Nodes       int
	Tasks       int
	CPUsPerTask int
	MemPerCPU   string
	MemTotal    string
	GPUs        int
	Walltime    string
}

// Violation names one dimension of a Request that exceeds the Ceiling.
type Violation struct {
	Field  string
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Reason)
}

// ComputeCeiling returns the element-wise minimum of cluster, global, and
// hard-coded default rules. A zero field in cluster or global rules means
// "no rule" and defers to the next, narrower source.
func ComputeCeiling(cluster, global config.SlurmRules) (Ceiling, error) {
	defaultMemPerCPU, err := ParseStorage(DefaultMaxMemPerCPU)
	if err != nil {
		return Ceiling{}, err
	}
	defaultMemTotal, err := ParseStorage(DefaultMaxMemTotal)
	if err != nil {
		return Ceiling{}, err
	}
	defaultWalltime, err := ParseWalltime(DefaultMaxWalltime)
	if err != nil {
		return Ceiling{}, err
	}

	ceiling := Ceiling{
		Nodes:       DefaultMaxNodes,
		Tasks:       DefaultMaxTasks,
		CPUsPerTask: DefaultMaxCPUsPerTask,
		MemPerCPU:   defaultMemPerCPU,
		MemTotal:    defaultMemTotal,
		GPUs:        DefaultMaxGPUs,
		Walltime:    defaultWalltime,
	}

	for _, rules := range []config.SlurmRules{global, cluster} {
		if err := applyRules(&ceiling, rules); err != nil {
			return Ceiling{}, err
		}
	}
	return ceiling, nil
}

func applyRules(ceiling *Ceiling, rules config.SlurmRules) error {
	if rules.Nodes > 0 {
		ceiling.Nodes = minInt(ceiling.Nodes, rules.Nodes)
	}
	if rules.Tasks > 0 {
		ceiling.Tasks = minInt(ceiling.Tasks, rules.Tasks)
	}
	if rules.CPUsPerTask > 0 {
		ceiling.CPUsPerTask = minInt(ceiling.CPUsPerTask, rules.CPUsPerTask)
	}
	if rules.GPUs > 0 {
		ceiling.GPUs = minInt(ceiling.GPUs, rules.GPUs)
	}
	if rules.MemPerCPU != "" {
		v, err := ParseStorage(rules.MemPerCPU)
		if err != nil {
			return err
		}
		ceiling.MemPerCPU = minInt64(ceiling.MemPerCPU, v)
	}
	if rules.MemTotal != "" {
		v, err := ParseStorage(rules.MemTotal)
		if err != nil {
			return err
		}
		ceiling.MemTotal = minInt64(ceiling.MemTotal, v)
	}
	if rules.Walltime != "" {
		v, err := ParseWalltime(rules.Walltime)
		if err != nil {
			return err
		}
		ceiling.Walltime = minFloat(ceiling.Walltime, v)
	}
	return nil
}

// Validate parses req and reports every dimension that exceeds ceiling. An
// empty Request field is treated as "not specified" and never violates,
// mirroring exceedsThreshold's zero-value contract.
func Validate(req Request, ceiling Ceiling) ([]Violation, error) {
	var violations []Violation

	if exceedsInt(req.Nodes, ceiling.Nodes) {
		violations = append(violations, Violation{"nodes", fmt.Sprintf("%d exceeds ceiling %d", req.Nodes, ceiling.Nodes)})
	}
	if exceedsInt(req.Tasks, ceiling.Tasks) {
		violations = append(violations, Violation{"tasks", fmt.Sprintf("%d exceeds ceiling %d", req.Tasks, ceiling.Tasks)})
	}
	if exceedsInt(req.CPUsPerTask, ceiling.CPUsPerTask) {
		violations = append(violations, Violation{"cpus_per_task", fmt.Sprintf("%d exceeds ceiling %d", req.CPUsPerTask, ceiling.CPUsPerTask)})
	}
	if exceedsInt(req.GPUs, ceiling.GPUs) {
		violations = append(violations, Violation{"gpus", fmt.Sprintf("%d exceeds ceiling %d", req.GPUs, ceiling.GPUs)})
	}

	if req.MemPerCPU != "" {
		v, err := ParseStorage(req.MemPerCPU)
		if err != nil {
			return nil, err
		}
		if exceedsInt64(v, ceiling.MemPerCPU) {
			violations = append(violations, Violation{"mem_per_cpu", fmt.Sprintf("%s exceeds ceiling", req.MemPerCPU)})
		}
	}
	if req.MemTotal != "" {
		v, err := ParseStorage(req.MemTotal)
		if err != nil {
			return nil, err
		}
		if exceedsInt64(v, ceiling.MemTotal) {
			violations = append(violations, Violation{"mem_total", fmt.Sprintf("%s exceeds ceiling", req.MemTotal)})
		}
	}
	if req.Walltime != "" {
		v, err := ParseWalltime(req.Walltime)
		if err != nil {
			return nil, err
		}
		if exceedsFloat(v, ceiling.Walltime) {
			violations = append(violations, Violation{"walltime", fmt.Sprintf("%s exceeds ceiling", req.Walltime)})
		}
	}

	return violations, nil
}

func exceedsInt(value, max int) bool       { return value > 0 && value > max }
func exceedsInt64(value, max int64) bool   { return value > 0 && value > max }
func exceedsFloat(value, max float64) bool { return value > 0 && value > max }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
