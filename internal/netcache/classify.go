package netcache

import (
	"net/http"
	"path"
	"strings"
)

// Strategy names how a request is sourced.
type Strategy string

// Strategies in routing order.
const (
	StrategyAPI        Strategy = "api"
	StrategyImage      Strategy = "image"
	StrategyAsset      Strategy = "asset"
	StrategyNavigation Strategy = "navigation"
	StrategyDefault    Strategy = "default"
)

var extensionDestinations = map[string]string{
	".png":   "image",
	".jpg":   "image",
	".jpeg":  "image",
	".gif":   "image",
	".webp":  "image",
	".avif":  "image",
	".svg":   "image",
	".ico":   "image",
	".js":    "script",
	".mjs":   "script",
	".css":   "style",
	".woff":  "font",
	".woff2": "font",
	".ttf":   "font",
	".otf":   "font",
	".eot":   "font",
}

// Classify picks the strategy for r. The first matching rule wins: API prefix, image,
// script/style/font, navigation, then everything else.
func Classify(r *http.Request, apiPrefix string) Strategy {
	if apiPrefix == "" {
		apiPrefix = DefaultAPIPrefix
	}
	if strings.HasPrefix(r.URL.Path, apiPrefix) {
		return StrategyAPI
	}

	switch destination(r) {
	case "image":
		return StrategyImage
	case "script", "style", "font":
		return StrategyAsset
	case "document":
		return StrategyNavigation
	}
	return StrategyDefault
}

// destination mirrors the fetch destination of the request. Without fetch metadata headers it
// is inferred from the path extension and the Accept header.
func destination(r *http.Request) string {
	if strings.EqualFold(r.Header.Get("Sec-Fetch-Mode"), "navigate") {
		return "document"
	}
	if dest := strings.ToLower(strings.TrimSpace(r.Header.Get("Sec-Fetch-Dest"))); dest != "" && dest != "empty" {
		return dest
	}

	if dest, ok := extensionDestinations[strings.ToLower(path.Ext(r.URL.Path))]; ok {
		return dest
	}
	if r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html") {
		return "document"
	}
	return ""
}
