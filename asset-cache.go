package assetcache

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/piplinepro/asset-cache/cache"
	resourceclass "github.com/piplinepro/asset-cache/pkg/resource-class"
	serializer "github.com/piplinepro/asset-cache/pkg/response-serializer"
	tee "github.com/piplinepro/asset-cache/pkg/response-writer-tee"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultManifest is the PipLinePro application shell,
// precached into the static partition at install time.
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/static/css/main.css",
	"/static/img/logo.png",
}

type Config struct {
	// Storage for cache partitions.
	Store cache.PartitionStore
	// URL of the origin server.
	// Origins with paths are not supported.
	OriginURL url.URL
	// Version stamp of the current deployment.
	// Supplied by the build pipeline and trusted as-is;
	// partitions of other stamps are swept at activation.
	Version string
	// Prefix for partition names. Defaults to "piplinepro".
	CachePrefix string
	// Path marker for API requests, which are never intercepted.
	// Defaults to "/api/".
	APIMarker string
	// Application shell paths seeded into the static partition at install.
	// DefaultManifest is used if empty.
	Manifest []string
	// Park the installed worker until promoted instead of
	// activating immediately.
	WaitForPromotion bool
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// Worker is one deployment generation of the asset cache gateway.
// It installs the application shell, sweeps partitions of older
// generations at activation, and then intercepts GET traffic with a
// per-resource-class caching strategy.
type Worker struct {
	store            cache.PartitionStore
	log              zerolog.Logger
	originURL        url.URL
	apiMarker        string
	manifest         []string
	staticPartition  string
	runtimePartition string
	wait             bool
	promote          chan struct{}
	promoteOnce      sync.Once
	state            atomic.Int32
	reverseproxy     httputil.ReverseProxy
	httpClient       http.Client
}

// New initializes a cache worker for the given deployment generation.
func New(config Config) *Worker {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	prefix := config.CachePrefix
	if prefix == "" {
		prefix = "piplinepro"
	}
	apiMarker := config.APIMarker
	if apiMarker == "" {
		apiMarker = "/api/"
	}
	manifest := config.Manifest
	if len(manifest) == 0 {
		manifest = DefaultManifest
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("origin", config.OriginURL.String()).
		Str("version", config.Version).
		Str("worker", uuid.NewString()).
		Logger()

	wk := &Worker{
		store:            config.Store,
		log:              logger,
		originURL:        config.OriginURL,
		apiMarker:        apiMarker,
		manifest:         manifest,
		staticPartition:  fmt.Sprintf("%s-static-%s", prefix, config.Version),
		runtimePartition: fmt.Sprintf("%s-runtime-%s", prefix, config.Version),
		wait:             config.WaitForPromotion,
		promote:          make(chan struct{}),
		httpClient: http.Client{
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	wk.reverseproxy = httputil.ReverseProxy{
		Director: createDirector(config.OriginURL.Scheme, config.OriginURL.Host),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error().Err(err).Str("url", r.URL.String()).Msg("Error contacting origin")
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	return wk
}

// StaticPartition returns the partition name seeded at install time.
func (wk *Worker) StaticPartition() string {
	return wk.staticPartition
}

// RuntimePartition returns the partition name populated during fetch handling.
func (wk *Worker) RuntimePartition() string {
	return wk.runtimePartition
}

// ServeHTTP implements the http.Handler interface.
// Requests are only intercepted once the worker is active;
// everything else is handed to the origin untouched.
func (wk *Worker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if wk.State() != StateActive || !wk.intercepts(r) {
		wk.passThrough(w, r)
		return
	}
	class := resourceclass.Classify(r.URL.Path)
	if class.Strategy() == resourceclass.StrategyNetworkFirst {
		wk.networkFirst(w, r)
	} else {
		wk.cacheFirst(w, r, class)
	}
}

// intercepts reports whether the request is subject to caching at all.
// Non-GET requests and API requests always go straight to the origin.
func (wk *Worker) intercepts(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if strings.Contains(r.URL.Path, wk.apiMarker) {
		return false
	}
	return true
}

func (wk *Worker) passThrough(w http.ResponseWriter, r *http.Request) {
	wk.reverseproxy.ServeHTTP(w, r)
}

// networkFirst always fetches from the origin and snapshots the response
// (whatever its status) into the runtime partition. The cache is only
// consulted when the origin is unreachable.
func (wk *Worker) networkFirst(w http.ResponseWriter, r *http.Request) {
	key := requestKey(r.Method, r.URL.RequestURI())
	log := wk.log.With().Str("key", key).Logger()

	cs := CacheStatus{}
	cs.Forward(FwdReasonUriMiss)

	res, err := wk.fetch(r)
	if err != nil {
		log.Debug().Err(err).Msg("Origin unreachable, trying cache fallback")
		entry, ok, cacheErr := wk.store.Match(key)
		if cacheErr != nil {
			log.Error().Err(cacheErr).Msg("Could not retrieve from cache")
		}
		if !ok {
			log.Error().Err(err).Msg("Could not fetch response from origin")
			http.Error(w, "Error contacting origin", http.StatusBadGateway)
			return
		}
		cs.Hit()
		wk.sendStored(w, r, entry, cs)
		return
	}

	// snapshot before sending, so the fallback copy always matches
	// what the client last saw
	if bts, serErr := serializer.ResponseToBytes(res); serErr != nil {
		log.Error().Err(serErr).Msg("Could not serialize response")
	} else {
		entry := cache.Entry{Key: key, ReceivedAt: time.Now(), Bytes: bts}
		if putErr := wk.store.Put(wk.runtimePartition, key, entry); putErr != nil {
			log.Error().Err(putErr).Msg("Could not write to cache")
		} else {
			cs.Stored = true
		}
	}

	wk.send(w, r, res, cs)
}

// cacheFirst serves from cache when possible and only consults the origin
// on a miss. Misses of runtime-cacheable classes are stored for future hits.
func (wk *Worker) cacheFirst(w http.ResponseWriter, r *http.Request, class resourceclass.Class) {
	key := requestKey(r.Method, r.URL.RequestURI())
	log := wk.log.With().Str("key", key).Logger()

	cs := CacheStatus{}
	if entry, ok, err := wk.store.Match(key); err != nil {
		log.Error().Err(err).Msg("Could not retrieve from cache")
	} else if ok {
		cs.Hit()
		wk.sendStored(w, r, entry, cs)
		return
	}

	cs.Forward(FwdReasonUriMiss)
	// set cache-status on underlying rw only (i.e. do not save to cache)
	w.Header().Add("Cache-Status", cs.String())

	rwtee := tee.NewResponseSaver(w)
	wk.reverseproxy.ServeHTTP(rwtee, r)

	if rwtee.StatusCode() == http.StatusOK && class.RuntimeCacheable() {
		entry := cache.Entry{Key: key, ReceivedAt: rwtee.CreatedAt, Bytes: rwtee.Response()}
		if err := wk.store.Put(wk.runtimePartition, key, entry); err != nil {
			log.Error().Err(err).Msg("Could not write to cache")
		} else {
			cs.Stored = true
		}
	}

	wk.logRequest(r, cs)
}

// fetch the resource specified in the incoming request from the origin
func (wk *Worker) fetch(r *http.Request) (*http.Response, error) {
	uri := wk.originURL.String() + r.URL.RequestURI()
	req, err := http.NewRequestWithContext(r.Context(), r.Method, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("create origin request: %w", err)
	}
	copyHeader(req.Header, r.Header)
	// do not forward connection header, this causes trouble
	req.Header.Del("Connection")
	return wk.httpClient.Do(req)
}

func (wk *Worker) sendStored(w http.ResponseWriter, r *http.Request, entry cache.Entry, cs CacheStatus) {
	res, err := serializer.BytesToResponse(entry.Bytes)
	if err != nil {
		wk.log.Error().Err(err).Str("key", entry.Key).Msg("Could not read stored response")
		wk.passThrough(w, r)
		return
	}
	age := int(time.Since(entry.ReceivedAt).Seconds())
	if age < 0 {
		age = 0
	}
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeader(w.Header(), res.Header)
	w.Header().Set("Age", strconv.Itoa(age))
	w.Header().Add("Cache-Status", cs.String())
	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		wk.log.Error().Err(err).Msg("Could not write response body to client")
	}
	wk.logRequest(r, cs)
}

func (wk *Worker) send(w http.ResponseWriter, r *http.Request, res *http.Response, cs CacheStatus) {
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeader(w.Header(), res.Header)
	w.Header().Add("Cache-Status", cs.String())
	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		wk.log.Error().Err(err).Msg("Could not write response body to client")
	}
	wk.logRequest(r, cs)
}

func (wk *Worker) logRequest(r *http.Request, cs CacheStatus) {
	isHit := 0
	if cs.IsHit() {
		isHit = 1
	}
	wk.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("fwd", string(cs.FwdReason)).
		Bool("stored", cs.Stored).
		Int("hit", isHit).
		Msg("Sending response to client")
}

func requestKey(method, uri string) string {
	return method + " " + uri
}

func createDirector(scheme, host string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		req.Host = host
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// this is a workaround to remove default headers sent by an upstream proxy
		// some servers do not like the presence of these headers in the downstream request
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
