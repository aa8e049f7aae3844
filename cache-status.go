package assetcache

import "strings"

// cacheName is the name this cache uses to identify itself
// in the Cache-Status response header (RFC 9211).
const cacheName = "piplinepro-cache"

type FwdReason string

const (
	// The cache did not contain any responses that matched the
	// request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"

	// The request method's semantics require the request to be
	// forwarded.
	FwdReasonMethod FwdReason = "method"

	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"
)

// CacheStatus conveys how the cache handled a request,
// serialized into the Cache-Status header on every intercepted response.
type CacheStatus struct {
	// FwdReason is the reason for forwarding the request to the origin.
	// Empty means the response was served from cache.
	FwdReason FwdReason
	// Stored indicates whether the forwarded response was written to cache.
	Stored bool
}

func (cs *CacheStatus) Hit() {
	cs.FwdReason = ""
	cs.Stored = false
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.FwdReason = reason
}

func (cs *CacheStatus) IsHit() bool {
	return cs.FwdReason == ""
}

func (cs CacheStatus) String() string {
	sb := strings.Builder{}
	sb.WriteString(cacheName)
	if cs.FwdReason == "" {
		sb.WriteString("; hit")
	} else {
		sb.WriteString("; fwd=")
		sb.WriteString(string(cs.FwdReason))
	}
	if cs.Stored {
		sb.WriteString("; stored")
	}
	return sb.String()
}
