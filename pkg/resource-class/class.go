package resourceclass

import (
	"strings"
)

// Class is the resource class of a request, derived from its URL path.
// Classification is a closed enumeration: every path maps to exactly one
// class, and the caching strategy follows from the class alone.
type Class int

const (
	ClassOther Class = iota
	ClassDocument
	ClassScript
	ClassStylesheet
	ClassImage
	ClassFont
)

func (c Class) String() string {
	switch c {
	case ClassDocument:
		return "document"
	case ClassScript:
		return "script"
	case ClassStylesheet:
		return "stylesheet"
	case ClassImage:
		return "image"
	case ClassFont:
		return "font"
	default:
		return "other"
	}
}

// Strategy is the caching strategy applied to a resource class.
type Strategy int

const (
	StrategyCacheFirst Strategy = iota
	StrategyNetworkFirst
)

// Strategy returns the caching strategy for the class.
// Documents and script chunks are network-first so that a deployment never
// leaves clients loading stale bundle chunks that no longer exist upstream.
// Everything else is cache-first.
func (c Class) Strategy() Strategy {
	switch c {
	case ClassDocument, ClassScript:
		return StrategyNetworkFirst
	default:
		return StrategyCacheFirst
	}
}

// RuntimeCacheable reports whether a cache-first response of this class
// may be added to the runtime partition after a successful fetch.
func (c Class) RuntimeCacheable() bool {
	switch c {
	case ClassStylesheet, ClassImage, ClassFont:
		return true
	default:
		return false
	}
}

// Classify returns the resource class for the given URL path.
// It is total: unrecognized paths classify as ClassOther.
func Classify(path string) Class {
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, ".html") {
		return ClassDocument
	}
	if strings.Contains(path, "/js/") && strings.HasSuffix(path, ".js") {
		return ClassScript
	}
	switch ext(path) {
	case ".css":
		return ClassStylesheet
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".avif":
		return ClassImage
	case ".woff", ".woff2", ".ttf", ".otf", ".eot":
		return ClassFont
	default:
		return ClassOther
	}
}

func ext(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 || strings.Contains(path[idx:], "/") {
		return ""
	}
	return strings.ToLower(path[idx:])
}
