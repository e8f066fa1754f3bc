package ports

import (
	"context"
	"time"
)

// FirstSeenProvider is an on-chain oracle for wallet age: when each wallet
// was first seen on the network. Wallets missing from the returned map fall
// back to the in-sample freshness heuristic.
type FirstSeenProvider interface {
	FirstSeen(ctx context.Context, wallets []string) (map[string]time.Time, error)
}
