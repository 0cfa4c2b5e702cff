package geminidialect

import "sync"

// minThoughtSignatureLen is the implementation-defined threshold spec
// §4.4.2 calls "a threshold" below which a thoughtSignature is treated as
// too short to be meaningful and is not cached.
const minThoughtSignatureLen = 16

// skipThoughtSignature is attached to a replayed tool_use part when no
// cached signature exists for it, signalling Gemini to proceed without a
// genuine continuation signature rather than omitting the field (which some
// Gemini model versions reject on a tool-call turn following a thought).
const skipThoughtSignature = "skip_thought_signature"

// signatureCache is the process-wide concurrent map spec §9 describes:
// keyed by (modelFamily, textOrToolID), holding the opaque thinking
// signature needed to round-trip a thought back to Gemini.
var signatureCache = struct {
	mu sync.RWMutex
	m  map[string]string
}{m: make(map[string]string)}

func sigCacheKey(modelFamily, key string) string {
	return modelFamily + "\x00" + key
}

func storeSignature(modelFamily, key, signature string) {
	if len(signature) < minThoughtSignatureLen {
		return
	}
	signatureCache.mu.Lock()
	signatureCache.m[sigCacheKey(modelFamily, key)] = signature
	signatureCache.mu.Unlock()
}

func lookupSignature(modelFamily, key string) (string, bool) {
	signatureCache.mu.RLock()
	defer signatureCache.mu.RUnlock()
	sig, ok := signatureCache.m[sigCacheKey(modelFamily, key)]
	return sig, ok
}
