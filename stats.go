package dataflow

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// startStatsReporter schedules a periodic diagnostics snapshot on a cron
// job rather than a bare time.Ticker, so the same cron expression syntax
// used for the rest of the deployment's scheduled jobs also covers this
// one. The reporter only reads counters and emits logs/metrics; it never
// touches collection state or step instances.
func (c *Context) startStatsReporter(interval time.Duration) {
	c.statsStop = make(chan struct{})
	cr := cron.New()
	_, err := cr.AddFunc(fmt.Sprintf("@every %s", interval), c.reportStats)
	if err != nil {
		c.log.Warn("stats reporter disabled: invalid interval", "interval", interval, "error", err)
		return
	}
	cr.Start()

	c.statsWg.Add(1)
	go func() {
		defer c.statsWg.Done()
		<-c.statsStop
		stopped := cr.Stop()
		<-stopped.Done()
	}()
}

func (c *Context) reportStats() {
	depth := c.sched.queueDepth()
	outstanding := c.outstanding.Load()
	reclaimed := c.reclaimed.Load()

	c.log.Info("dataflow stats",
		"outstanding_work", outstanding,
		"queue_depth", depth,
		"items_reclaimed", reclaimed,
		"scheduler_idle", c.sched.idle(),
	)

	ctx := context.Background()
	if c.inst.QueueDepth != nil {
		c.inst.QueueDepth.Record(ctx, int64(depth))
	}
	if c.inst.OutstandingWork != nil {
		c.inst.OutstandingWork.Record(ctx, outstanding)
	}
}
