package maintainer

import (
	"go.uber.org/zap"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/config"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/connpool"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/eventlog"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/resultcache"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/secretstore"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/slurmvalidate"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/sshsession"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/staging"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

// Deps bundles every collaborator a maintainer constructor needs. The
// scheduler's DepsFactory builds one for each admitted job from that job's
// cluster.
type Deps struct {
	HPC HPCContext

	Store       store.Store
	Events      *eventlog.Emitter
	Staging     *staging.Engine
	Secrets     *secretstore.Store
	ResultCache *resultcache.Cache
	Logger      *zap.Logger

	SharedPool  *connpool.SharedPool
	PrivatePool *connpool.PrivatePool

	// Dial builds a fresh, unconnected session for the given address and
	// credentials; production wires sshsession.New.
	Dial func(addr, user, password string) *sshsession.Session
}

// HPCContext is the resolved configuration for the job's target cluster.
type HPCContext struct {
	Name    string
	Config  config.HPCConfig
	Ceiling slurmvalidate.Ceiling

	// Kernel is only consulted by the container-wrapped
	// community_contribution variant; the plain variant ignores it.
	// Container is carried but read by neither variant: the container
	// image comes from the job's executable manifest.
	Container config.ContainerConfig
	Kernel    config.KernelConfig
}
