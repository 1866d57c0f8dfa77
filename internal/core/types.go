package core

import "fmt"

// ChannelType is the discriminant carried by every engine-to-host call. The
// numbering is the flat wire form and must not change.
type ChannelType int32

const (
	ChannelModule       ChannelType = 0 // specifier in, source text out
	ChannelMethod       ChannelType = 1 // call frame in, one value out
	ChannelPromiseTrack ChannelType = 2 // rejection reason in, nothing out
	ChannelFreeObject   ChannelType = 3 // opaque pointer in, nothing out
)

func (t ChannelType) String() string {
	switch t {
	case ChannelModule:
		return "MODULE"
	case ChannelMethod:
		return "METHOD"
	case ChannelPromiseTrack:
		return "PROMISE_TRACK"
	case ChannelFreeObject:
		return "FREE_OBJECT"
	default:
		return fmt.Sprintf("ChannelType(%d)", int32(t))
	}
}
