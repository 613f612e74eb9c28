package gateway

import (
	"context"
)

// Lane key prefixes. Direct messages, commands and departures for one user
// share a lane; announcements share a lane per channel.
const (
	LaneUser    = "user"
	LaneChannel = "channel"
)

// Gateway serialises inbound platform events. Chat SDKs deliver events on
// concurrent goroutines; the gateway restores one-at-a-time handling per
// user and per channel.
type Gateway struct {
	Queue *Queue
}

// New creates a Gateway with the given concurrency limit across lanes.
func New(maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 4
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	return &Gateway{
		Queue: NewQueue(concurrency),
	}
}

// Start starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.Queue.Start(ctx)
}

// Stop stops the queue and waits for in-flight jobs.
func (g *Gateway) Stop() {
	g.Queue.Stop()
}

// Dispatch enqueues fn on the lane for key.
func (g *Gateway) Dispatch(lane, key, kind string, fn func(ctx context.Context) error) error {
	return g.Queue.Enqueue(NewJob(lane+":"+key, kind, fn))
}

// DispatchUser enqueues fn on the lane of the given user.
func (g *Gateway) DispatchUser(user, kind string, fn func(ctx context.Context) error) error {
	return g.Dispatch(LaneUser, user, kind, fn)
}

// DispatchChannel enqueues fn on the lane of the given channel.
func (g *Gateway) DispatchChannel(channel, kind string, fn func(ctx context.Context) error) error {
	return g.Dispatch(LaneChannel, channel, kind, fn)
}
