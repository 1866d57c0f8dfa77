package jsbridge

import "github.com/cryguy/jsbridge/internal/core"

// Type aliases re-exporting internal/core types so hosts can use
// jsbridge.Config and jsbridge.ChannelType without importing the internal
// package directly.

type Config = core.Config
type ChannelType = core.ChannelType

// Channel discriminants re-exported from core.
const (
	ChannelModule       = core.ChannelModule
	ChannelMethod       = core.ChannelMethod
	ChannelPromiseTrack = core.ChannelPromiseTrack
	ChannelFreeObject   = core.ChannelFreeObject
)
