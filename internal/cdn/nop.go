package cdn

import (
	"context"

	"cdnsync/internal/deploy"
)

// LogCDN stands in when no CDN API is configured. It only records what
// would have been refreshed or prefetched.
type LogCDN struct {
	logger deploy.Logger
}

// NewLogCDN creates a LogCDN writing to logger.
func NewLogCDN(logger deploy.Logger) *LogCDN {
	return &LogCDN{logger: logger}
}

func (c *LogCDN) Refresh(_ context.Context, urls []string) error {
	c.logger.Debug("cdn refresh skipped, no cdn configured", "urls", len(urls))
	return nil
}

func (c *LogCDN) Prefetch(_ context.Context, urls []string) error {
	c.logger.Debug("cdn prefetch skipped, no cdn configured", "urls", len(urls))
	return nil
}

// Compile-time check that LogCDN implements deploy.CDN interface
var _ deploy.CDN = (*LogCDN)(nil)
