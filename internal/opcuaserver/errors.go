package opcuaserver

import "errors"

var (
	errBadValue    = errors.New("opcuaserver: value type does not match tag kind")
	errNotWritable = errors.New("opcuaserver: tag is not writable")
)
