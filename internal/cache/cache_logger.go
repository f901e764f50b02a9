package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// Stats keys shared by the aggregator and the invalidation helpers
func UserStatsKey(userID uint) string { return fmt.Sprintf("user:%d:", userID) }

const AdminStatsKey = "admin:"

// InvalidateUserStats drops every cached aggregate derived from one user's
// activity, including the administrator views that include that user.
func InvalidateUserStats(ctx context.Context, cm *CacheManager, userID uint) {
	SafeInvalidatePattern(ctx, cm.Stats, UserStatsKey(userID)+"*")
	SafeInvalidatePattern(ctx, cm.Stats, AdminStatsKey+"*")
}

// InvalidateQuestionCache drops question-bank derived entries. Bank size feeds
// every dashboard, so all stats go too.
func InvalidateQuestionCache(ctx context.Context, cm *CacheManager) {
	SafeInvalidatePattern(ctx, cm.Question, "*")
	SafeInvalidatePattern(ctx, cm.Stats, "*")
}
