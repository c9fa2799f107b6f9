// Package venue defines the capability contract shared by venue connectors
// and the request/response correlation plumbing they build on.
package venue

import (
	"context"
	"time"

	"github.com/rickgao/book-aggregator/internal/model"
)

// Connector is a live streaming session with one trading venue.
//
// Implementations maintain a background session loop that answers the
// venue's liveness traffic and files correlated responses into a pending
// table. PullTopOfBook is safe to call concurrently with that loop; all
// writes share one serialized connection.
type Connector interface {
	// Venue identifies which venue this connector speaks to.
	Venue() model.Venue

	// PullTopOfBook requests up to depth levels per side for an
	// instrument. Depth is clamped to the venue's supported bound. The
	// returned timestamp is the server timestamp where the venue supplies
	// one, and the local receive time otherwise.
	//
	// Fails with ErrCorrelationTimeout if no matching response arrives
	// within the polling budget; the session stays usable afterwards.
	PullTopOfBook(ctx context.Context, depth int, instrument model.Instrument) (bids, asks []model.Level, serverTime time.Time, err error)

	// Stop clears the connector's liveness flag. The session loop observes
	// the flag at its next iteration boundary and shuts down; in-flight
	// requests fail rather than hang.
	Stop()
}

// Credentials are opaque identifier/secret strings supplied at connect
// time. Venues without authentication ignore them.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Polling parameters for correlated responses: PollAttempts probes of the
// pending table spaced PollInterval apart bound the total wait to roughly
// 500ms. Stalls degrade to ErrCorrelationTimeout rather than hanging.
const (
	PollAttempts = 5
	PollInterval = 100 * time.Millisecond
)
