package system

import "context"

// Service is a lifecycle-managed background component: the cache sweeper,
// the matcher, the live aggregator.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DescriptorProvider optionally advertises service metadata.
type DescriptorProvider interface {
	Descriptor() Descriptor
}
