package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/health"
)

// IndexCheck reports degraded while any index waits for or runs a rebuild.
func IndexCheck(reg Registry) health.Check {
	return func(context.Context) health.ComponentHealth {
		var pending []string
		for _, info := range reg.Indexes() {
			if info.Status != indexer.StatusOK.String() {
				pending = append(pending, fmt.Sprintf("%s=%s", info.Name, info.Status))
			}
		}
		if len(pending) > 0 {
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: strings.Join(pending, ", "),
			}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	}
}
