package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/vocdoni/skillrating/engine"
	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/storage"
)

// APIConfig type represents the configuration for the API HTTP server.
// It includes the host, port, the storage recording consumed signed
// requests and the engine and runtime to serve.
type APIConfig struct {
	Host    string
	Port    int
	Storage *storage.Storage
	Engine  *engine.Engine
	Runtime *fhe.Runtime
}

// pruneInterval is how often the expired consumed requests are removed.
const pruneInterval = time.Minute

// API type represents the API HTTP server of the rating engine.
type API struct {
	router   *chi.Mux
	storage  *storage.Storage
	engine   *engine.Engine
	runtime  *fhe.Runtime
	server   *http.Server
	addr     net.Addr
	stop     context.CancelFunc
	upgrader websocket.Upgrader
	now      func() time.Time
}

// New creates a new API instance with the given configuration and starts
// the HTTP server. A zero Port lets the system choose one, see Addr.
func New(conf *APIConfig) (*API, error) {
	a, err := newAPI(conf)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", conf.Host, conf.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	a.addr = ln.Addr()
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	var ctx context.Context
	ctx, a.stop = context.WithCancel(context.Background())
	go a.pruneRequests(ctx, pruneInterval)
	go func() {
		log.Infow("Starting API server", "address", a.addr.String())
		if err := a.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// newAPI builds the API and its router without starting a server.
func newAPI(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Storage == nil {
		return nil, fmt.Errorf("missing storage instance")
	}
	if conf.Engine == nil {
		return nil, fmt.Errorf("missing engine instance")
	}
	if conf.Runtime == nil {
		return nil, fmt.Errorf("missing confidential runtime instance")
	}
	a := &API{
		storage: conf.Storage,
		engine:  conf.Engine,
		runtime: conf.Runtime,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
	a.initRouter()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Addr returns the address the server listens on.
func (a *API) Addr() net.Addr {
	return a.addr
}

// Close stops the HTTP server.
func (a *API) Close(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	a.stop()
	return a.server.Shutdown(ctx)
}

// registerHandlers registers the request/response API handlers on r.
func (a *API) registerHandlers(r chi.Router) {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	r.Get(PingEndpoint, func(w http.ResponseWriter, _ *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", InfoEndpoint, "method", "GET")
	r.Get(InfoEndpoint, a.info)

	// confidential runtime
	log.Infow("register handler", "endpoint", FHEKeysEndpoint, "method", "GET")
	r.Get(FHEKeysEndpoint, a.fheKeys)
	log.Infow("register handler", "endpoint", FHEInputsEndpoint, "method", "POST")
	r.Post(FHEInputsEndpoint, a.registerInput)
	log.Infow("register handler", "endpoint", FHEDecryptEndpoint, "method", "POST")
	r.Post(FHEDecryptEndpoint, a.userDecrypt)

	// rounds
	log.Infow("register handler", "endpoint", RoundsEndpoint, "method", "POST")
	r.With(a.authenticated).Post(RoundsEndpoint, a.newRound)
	log.Infow("register handler", "endpoint", CurrentRoundEndpoint, "method", "GET")
	r.Get(CurrentRoundEndpoint, a.currentRound)
	log.Infow("register handler", "endpoint", RoundEndpoint, "method", "GET")
	r.Get(RoundEndpoint, a.round)
	log.Infow("register handler", "endpoint", EndRoundEndpoint, "method", "POST")
	r.With(a.authenticated).Post(EndRoundEndpoint, a.endRound)

	// membership
	log.Infow("register handler", "endpoint", MembersEndpoint, "method", "POST")
	r.With(a.authenticated).Post(MembersEndpoint, a.addMembers)
	log.Infow("register handler", "endpoint", CurrentRoundMembersEndpoint, "method", "POST")
	r.With(a.authenticated).Post(CurrentRoundMembersEndpoint, a.addMembersToCurrentRound)
	log.Infow("register handler", "endpoint", MemberEndpoint, "method", "GET")
	r.Get(MemberEndpoint, a.member)
	log.Infow("register handler", "endpoint", CensusEndpoint, "method", "GET")
	r.Get(CensusEndpoint, a.census)
	log.Infow("register handler", "endpoint", MemberEventsEndpoint, "method", "GET")
	r.Get(MemberEventsEndpoint, a.memberEvents)

	// weights
	log.Infow("register handler", "endpoint", WeightsEndpoint, "method", "PUT")
	r.With(a.authenticated).Put(WeightsEndpoint, a.setWeights)
	log.Infow("register handler", "endpoint", WeightsEndpoint, "method", "GET")
	r.Get(WeightsEndpoint, a.weights)

	// ratings
	log.Infow("register handler", "endpoint", RatingsEndpoint, "method", "POST")
	r.With(a.authenticated).Post(RatingsEndpoint, a.submitRating)
	log.Infow("register handler", "endpoint", RateeRatingsEndpoint, "method", "GET")
	r.Get(RateeRatingsEndpoint, a.rateeRatings)
	log.Infow("register handler", "endpoint", HasRatedEndpoint, "method", "GET")
	r.Get(HasRatedEndpoint, a.hasRated)

	// aggregation
	log.Infow("register handler", "endpoint", ScoreEndpoint, "method", "POST")
	r.Post(ScoreEndpoint, a.calculateScore)
	log.Infow("register handler", "endpoint", ScoreEndpoint, "method", "GET")
	r.Get(ScoreEndpoint, a.aggregate)
	log.Infow("register handler", "endpoint", SumsEndpoint, "method", "GET")
	r.Get(SumsEndpoint, a.dimensionSums)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", TimestampHeader, SignatureHeader},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)

	// The websocket stream is long lived, so it stays out of the throttle
	// and timeout chain. The engine caps the concurrent subscribers.
	log.Infow("register handler", "endpoint", SubscribeEndpoint, "method", "GET")
	a.router.Get(SubscribeEndpoint, a.subscribeMemberEvents)

	a.router.Group(func(r chi.Router) {
		r.Use(middleware.Throttle(100))
		r.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
		r.Use(middleware.Timeout(45 * time.Second))
		a.registerHandlers(r)
	})
}
