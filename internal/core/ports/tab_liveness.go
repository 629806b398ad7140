package ports

import "context"

// TabLivenessOracle tells whether a UI tab is still open.
type TabLivenessOracle interface {
	IsTabAlive(ctx context.Context, tabID int) (bool, error)
}
