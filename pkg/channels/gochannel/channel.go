// Package gochannel provides the in-process event bus transport for single-host deployments and tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// DefaultBuffer bounds the finished answers queued per subscriber before Publish blocks.
const DefaultBuffer int64 = 256

// CreateChannel returns one GoChannel as both publisher and subscriber. Messages are not
// persisted, so a subscriber only sees answers published after it subscribed.
func CreateChannel(logger watermill.LoggerAdapter, buffer int64) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: buffer,
		},
		logger,
	)

	return pubSub, pubSub, nil
}
