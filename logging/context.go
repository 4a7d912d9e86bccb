package logging

import (
	"context"

	"go.viam.com/utils"
)

type frameDebugKeyType int

const frameDebugKeyID = frameDebugKeyType(iota)

// EnableFrameDebug returns a context under which CDebugw and CWarnw log regardless of the logger's
// level, with a "debug_key" field set to key. An empty key is replaced by a random one.
func EnableFrameDebug(ctx context.Context, key string) context.Context {
	if key == "" {
		key = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, frameDebugKeyID, key)
}

// FrameDebugKey returns the key set by EnableFrameDebug, or "" outside of frame debugging.
func FrameDebugKey(ctx context.Context) string {
	key, _ := ctx.Value(frameDebugKeyID).(string)
	return key
}
