package checks

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/dealcache/internal/monitoring"
)

// Database pings the local store. A missing or unreachable store is down: nothing can be
// served offline without it.
func Database(db *gorm.DB) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.Result {
		if db == nil {
			return monitoring.Result{Status: monitoring.StatusDown, Details: "database not configured"}
		}
		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ErrorResult(err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return monitoring.ErrorResult(err)
		}
		stats := sqlDB.Stats()
		return monitoring.Result{
			Status:  monitoring.StatusUp,
			Details: fmt.Sprintf("%s, %d open connections", db.Dialector.Name(), stats.OpenConnections),
		}
	})
}
