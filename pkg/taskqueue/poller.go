package taskqueue

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"
)

const defaultPollSpec = "@every 30s"

// StartPoller wires the queue into a cron ticker. The returned cron is
// already running; the caller stops it on shutdown.
func StartPoller(ctx context.Context, q *Queue, spec string) *cron.Cron {
	if spec == "" {
		spec = defaultPollSpec
	}
	c := cron.New(cron.WithLocation(time.Local))
	_, err := c.AddFunc(spec, func() {
		q.RunDue(ctx, time.Now())
	})
	if err != nil {
		klog.Errorf("taskqueue: invalid poll spec %q: %v", spec, err)
		panic(err)
	}
	c.Start()
	klog.Infof("taskqueue poller started (%s)", spec)
	return c
}
