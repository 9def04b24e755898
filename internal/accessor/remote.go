package accessor

import (
	"errors"

	"github.com/infgeoax/memgraph/internal/gid"
)

// ErrNotYetImplemented is returned by every remote operation. Distributed
// mutation is out of scope for the single-node core; the seam exists so a
// worker engine can slot an RPC-backed implementation in without touching
// the local code path.
var ErrNotYetImplemented = errors.New("accessor: remote operation not yet implemented")

// RemoteOps is the seam distributed variants implement: mutations on
// records owned by another worker.
type RemoteOps interface {
	RemoveVertex(worker int, g gid.Gid) error
	RemoveEdge(worker int, g gid.Gid) error
	Connect(worker int, from, to gid.Gid, edgeType string) error
}

// UnimplementedRemoteOps rejects every remote mutation.
type UnimplementedRemoteOps struct{}

var _ RemoteOps = UnimplementedRemoteOps{}

func (UnimplementedRemoteOps) RemoveVertex(int, gid.Gid) error { return ErrNotYetImplemented }

func (UnimplementedRemoteOps) RemoveEdge(int, gid.Gid) error { return ErrNotYetImplemented }

func (UnimplementedRemoteOps) Connect(int, gid.Gid, gid.Gid, string) error {
	return ErrNotYetImplemented
}
