// Package prototest compiles fixture .proto sources in memory so tests
// can get real, linked descriptors without committing generated code.
package prototest

import (
	"context"
	"fmt"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Compile compiles the named file from the given path->source map and
// returns its descriptor.
func Compile(files map[string]string, path string) (protoreflect.FileDescriptor, error) {
	compiler := &protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			Accessor: protocompile.SourceAccessorFromMap(files),
		}),
	}
	fds, err := compiler.Compile(context.Background(), path)
	if err != nil {
		return nil, err
	}
	return fds[0], nil
}

// CompileMessage compiles the named file and returns the named top-level
// message's descriptor.
func CompileMessage(files map[string]string, path, message string) (protoreflect.MessageDescriptor, error) {
	fd, err := Compile(files, path)
	if err != nil {
		return nil, err
	}
	md := fd.Messages().ByName(protoreflect.Name(message))
	if md == nil {
		return nil, fmt.Errorf("file %s has no message %q", path, message)
	}
	return md, nil
}
