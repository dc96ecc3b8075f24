// Package bridge converts protobuf descriptors and generated or dynamic
// message types into the defs and handler tables consumed by the streaming
// decode engine. Using it, the engine can populate arbitrary message types
// without any generated glue, or populate only a chosen subset of fields
// for higher performance when only some fields are needed.
//
// Typical usage builds a handler table once, ahead of time, and reuses it
// for every message of that type:
//
//	var cache bridge.CodeCache
//	h, err := cache.GetWriteHandlers(&mypb.MyMessage{})
//	if err != nil {
//		// handle error
//	}
//	// hand h to the decode engine along with each target message
//
// DefBuilder and CodeCache memoize by descriptor identity. Descriptor
// objects in google.golang.org/protobuf are canonical singletons for the
// lifetime of the process, which is what makes identity keying sound; that
// canonicality is a precondition of this package. Neither cache evicts:
// an entry lives as long as its cache.
//
// Nothing in this package is safe for concurrent use until frozen objects
// come out the other end. Callers that want to build from multiple
// goroutines must either serialize access externally or keep one cache per
// goroutine; frozen defs and tables returned by either cache may then be
// shared freely for reading.
package bridge
