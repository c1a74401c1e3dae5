// Package syncer reconciles the local store with the remote backend.
//
// A cycle first pushes the outbound queue in sequence order and then pulls
// the owner's full remote record set, overwriting local copies (last write
// wins). Only one cycle runs at a time; triggers that arrive while a cycle
// is in flight are coalesced into it. An offline cycle does no work at all.
package syncer
