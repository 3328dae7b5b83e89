package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"strikelab/internal/backtest"
	"strikelab/internal/config"
	"strikelab/internal/domain"
	"strikelab/internal/maxpain"
	"strikelab/internal/metrics"
	"strikelab/internal/options"
	"strikelab/internal/series"
	"strikelab/internal/signal"
	"strikelab/internal/store"
	"strikelab/internal/strategy"
	"strikelab/internal/util"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 32 << 20

// Deps are the engines and stores the API serves. Results may be nil, in
// which case run history and saving are unavailable.
type Deps struct {
	Contracts  store.ContractStore
	Results    store.ResultStore
	Backtester *strategy.Backtester
	Optimizer  *backtest.Optimizer
}

// Server serves the strikelab HTTP API.
type Server struct {
	deps    Deps
	cfg     *config.Config
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		deps: deps,
		cfg:  cfg,
		log:  slog.Default().With("component", "httpapi"),
	}
	if cfg.Server.RateLimit > 0 {
		s.limiter = util.NewRateLimiter(cfg.Server.RateLimit, max(1, cfg.Server.RateLimit/10))
	}
	return s
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.handle(mux, "POST /api/backtest", s.handleBacktest)
	s.handle(mux, "POST /api/optimize", s.handleOptimize)
	s.handle(mux, "GET /api/strategies", s.handleStrategies)
	s.handle(mux, "POST /api/strategies/{name}/run", s.handleStrategyRun)
	s.handle(mux, "GET /api/runs", s.handleRuns)
	s.handle(mux, "GET /api/runs/{id}", s.handleRun)
	s.handle(mux, "POST /api/maxpain", s.handleMaxPain)
	s.handle(mux, "GET /api/pcr", s.handlePCR)
	s.handle(mux, "POST /api/payoff", s.handlePayoff)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns an http.Handler with CORS and rate limiting applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.rateLimit(h)
	}
	origins := s.cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(h)
}

// handle registers fn under pattern and records its latency and status.
func (s *Server) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		metrics.ObserveHTTP(pattern, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Signal backtests
// ---------------------------------------------------------------------------

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if !decode(w, r, &req) {
		return
	}
	prices, buy, sell, err := req.compile()
	if err != nil {
		s.fail(w, err)
		return
	}
	res, err := backtest.Run(prices, buy, sell, backtest.Params{
		Target:    req.Target,
		StopLoss:  req.StopLoss,
		Direction: req.Direction,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !decode(w, r, &req) {
		return
	}
	mode, err := backtest.ParseMode(string(req.Mode))
	if err != nil {
		s.fail(w, err)
		return
	}
	prices, buy, sell, err := req.compile()
	if err != nil {
		s.fail(w, err)
		return
	}

	start := time.Now()
	cells, err := s.deps.Optimizer.Sweep(r.Context(), mode, prices, buy, sell, req.Direction, req.Targets, req.StopLosses)
	if err != nil {
		s.fail(w, err)
		return
	}
	ok := 0
	for _, c := range cells {
		if c.OK() {
			ok++
		}
	}
	metrics.ObserveSweep(string(mode), ok, len(cells)-ok, time.Since(start))

	ranked, err := backtest.Rank(cells, req.RankBy)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OptimizeResponse{Mode: mode, Cells: cells, Ranked: ranked})
}

// compile turns the request into a price series and entry/exit trees.
func (req *SignalRequest) compile() (series.Series, *signal.Node, *signal.Node, error) {
	table := make(map[string]series.Series, len(req.Series))
	for k, v := range req.Series {
		table[k] = v.series()
	}
	def := &strategy.Definition{
		Name:      "request",
		Direction: req.Direction,
		Price:     req.Price,
		Rules:     req.Rules,
		Buy:       req.Buy,
		Sell:      req.Sell,
	}
	buy, sell, err := def.Compile(table)
	if err != nil {
		return nil, nil, nil, err
	}
	prices, ok := table[def.PriceColumn()]
	if !ok {
		return nil, nil, nil, fmt.Errorf("price %w: %q", strategy.ErrUnknownSeries, def.PriceColumn())
	}
	return prices, buy, sell, nil
}

// ---------------------------------------------------------------------------
// Strategies and runs
// ---------------------------------------------------------------------------

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	reg := s.deps.Backtester.Registry()
	resp := StrategyListResponse{Strategies: []*strategy.Definition{}}
	for _, name := range reg.List() {
		if d, ok := reg.Get(name); ok {
			resp.Strategies = append(resp.Strategies, d)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStrategyRun(w http.ResponseWriter, r *http.Request) {
	var req strategy.Request
	if !decode(w, r, &req) {
		return
	}
	req.Strategy = r.PathValue("name")
	req.Definition = nil
	if req.Market == "" {
		req.Market = s.cfg.Backtest.Market
	}
	if req.Mode == "" {
		req.Mode = backtest.Mode(s.cfg.Backtest.Sweep)
	}
	if len(req.Targets) == 0 && len(req.StopLosses) == 0 {
		req.Targets, req.StopLosses = s.cfg.Backtest.Targets, s.cfg.Backtest.StopLosses
	}
	if req.RankBy == "" {
		req.RankBy = backtest.Metric(s.cfg.Backtest.RankBy)
	}

	rep, err := s.deps.Backtester.Run(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Results == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "result store not configured")
		return
	}
	q := r.URL.Query()
	f := store.RunFilter{Strategy: q.Get("strategy"), Symbol: q.Get("symbol")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	runs, err := s.deps.Results.ListRuns(r.Context(), f)
	if err != nil {
		s.fail(w, err)
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Results == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "result store not configured")
		return
	}
	run, err := s.deps.Results.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ---------------------------------------------------------------------------
// Open interest analytics
// ---------------------------------------------------------------------------

func (s *Server) handleMaxPain(w http.ResponseWriter, r *http.Request) {
	var req MaxPainRequest
	if !decode(w, r, &req) {
		return
	}
	topN := req.TopN
	if topN <= 0 {
		topN = s.cfg.MaxPain.TopN
	}
	calc := maxpain.NewCalculator(maxpain.WithTopN(topN))

	if req.Chain != nil {
		res, err := calc.Compute(maxpain.Chain{
			Timestamp:  req.Chain.Timestamp,
			Underlying: req.Chain.Underlying,
			Contracts:  req.Chain.Contracts,
		})
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MaxPainResponse{
			Symbol:  req.Symbol,
			Entries: []maxpain.Entry{{Timestamp: req.Chain.Timestamp, Result: res}},
		})
		return
	}

	expiry, rows, ok := s.loadExpiry(r.Context(), w, req.Symbol, req.Market, req.Expiry)
	if !ok {
		return
	}
	f := req.Filter
	if f.Gap == 0 {
		f.Gap = s.cfg.MaxPain.Gap
	}
	if f.StartStrike == 0 {
		f.StartStrike = s.cfg.MaxPain.StartStrike
	}
	if f.EndStrike == 0 {
		f.EndStrike = s.cfg.MaxPain.EndStrike
	}
	entries, err := calc.Sweep(r.Context(), rows, f.WithDefaults(expiry))
	if err != nil {
		s.fail(w, err)
		return
	}
	failed := 0
	for _, e := range entries {
		if e.Err != nil {
			failed++
		}
	}
	metrics.ObserveMaxPain(len(entries)-failed, failed)

	if req.Save && s.deps.Results != nil {
		if err := s.deps.Results.SaveMaxPain(r.Context(), req.Symbol, expiry, entries); err != nil {
			s.fail(w, err)
			return
		}
	}
	if entries == nil {
		entries = []maxpain.Entry{}
	}
	writeJSON(w, http.StatusOK, MaxPainResponse{
		Symbol:  strings.ToUpper(req.Symbol),
		Expiry:  expiry.Format(time.DateOnly),
		Entries: entries,
	})
}

// handlePCR serves one expiry's ratio, or with no expiry the stitched series
// over every stored expiry of the symbol.
func (s *Server) handlePCR(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "symbol is required")
		return
	}

	opts := options.PCROptions{OTM: q.Get("otm") == "true", Cap: s.cfg.Options.PCRCap}
	if v := q.Get("cap"); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil || c < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "cap must be a non-negative number")
			return
		}
		opts.Cap = c
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "from must be YYYY-MM-DD")
			return
		}
		opts.From = from
	}

	if q.Get("expiry") == "" {
		s.continuousPCR(w, r, symbol, q.Get("market"), opts)
		return
	}

	expiry, rows, ok := s.loadExpiry(r.Context(), w, symbol, q.Get("market"), q.Get("expiry"))
	if !ok {
		return
	}
	if opts.From.IsZero() {
		opts.From = maxpain.DefaultFrom(expiry)
	}

	points := options.PutCallRatio(rows, opts)
	if points == nil {
		points = []options.PCRPoint{}
	}
	writeJSON(w, http.StatusOK, PCRResponse{
		Symbol:    strings.ToUpper(symbol),
		Expiry:    expiry.Format(time.DateOnly),
		Points:    points,
		FuturesOI: options.FuturesOI(rows, opts.From),
	})
}

func (s *Server) continuousPCR(w http.ResponseWriter, r *http.Request, symbol, market string, opts options.PCROptions) {
	if market == "" {
		market = s.cfg.MaxPain.Market
	}
	expiries, err := s.deps.Contracts.ListExpiries(r.Context(), symbol, market)
	if err != nil {
		s.fail(w, err)
		return
	}
	if len(expiries) == 0 {
		s.fail(w, fmt.Errorf("%s %s expiries: %w", market, symbol, store.ErrNotFound))
		return
	}
	chains := make([]options.ExpiryChain, 0, len(expiries))
	for _, exp := range expiries {
		rows, err := s.deps.Contracts.ReadContracts(r.Context(), symbol, market, exp)
		if err != nil {
			s.fail(w, err)
			return
		}
		chains = append(chains, options.ExpiryChain{Expiry: exp, Contracts: rows})
	}

	points := options.ContinuousPutCallRatio(chains, opts)
	if points == nil {
		points = []options.PCRPoint{}
	}
	writeJSON(w, http.StatusOK, PCRResponse{
		Symbol: strings.ToUpper(symbol),
		Points: points,
	})
}

func (s *Server) handlePayoff(w http.ResponseWriter, r *http.Request) {
	var req PayoffRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Legs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_parameter", "at least one leg is required")
		return
	}

	var resp PayoffResponse
	if req.Symbol != "" {
		_, rows, ok := s.loadExpiry(r.Context(), w, req.Symbol, req.Market, req.Expiry)
		if !ok {
			return
		}
		resp.Realised = options.LegPL(rows, req.Legs, req.Start)
	}

	step := req.Step
	if step <= 0 {
		step = s.cfg.Options.SpotStep
	}
	lo, hi := req.Low, req.High
	if lo == 0 && hi == 0 {
		lo, hi = strikeSpan(req.Legs, step)
	}
	resp.Spots, resp.Payoff = options.TheoreticalPayoff(req.Legs, lo, hi, step)
	writeJSON(w, http.StatusOK, resp)
}

// strikeSpan returns a spot range covering the legs' strikes with ten steps
// of margin on each side.
func strikeSpan(legs []options.Leg, step float64) (lo, hi float64) {
	if step <= 0 {
		step = options.DefaultSpotStep
	}
	lo, hi = legs[0].Strike, legs[0].Strike
	for _, l := range legs[1:] {
		lo, hi = min(lo, l.Strike), max(hi, l.Strike)
	}
	return lo - 10*step, hi + 11*step
}

// loadExpiry reads one stored expiry, writing the error response itself
// when it fails.
func (s *Server) loadExpiry(ctx context.Context, w http.ResponseWriter, symbol, market, expiry string) (time.Time, []domain.Contract, bool) {
	if symbol == "" || expiry == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "symbol and expiry are required")
		return time.Time{}, nil, false
	}
	exp, err := util.ParseExpiry(expiry)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return time.Time{}, nil, false
	}
	if market == "" {
		market = s.cfg.MaxPain.Market
	}
	rows, err := s.deps.Contracts.ReadContracts(ctx, symbol, market, exp)
	if err != nil {
		s.fail(w, err)
		return time.Time{}, nil, false
	}
	return exp, rows, true
}

// ---------------------------------------------------------------------------
// Encoding and errors
// ---------------------------------------------------------------------------

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "decoding body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: msg}})
}

// errorCodes maps sentinel errors to a status and a stable code. The first
// match wins.
var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{store.ErrNotFound, http.StatusNotFound, "not_found"},
	{strategy.ErrUnknownStrategy, http.StatusNotFound, "unknown_strategy"},
	{backtest.ErrEmptySeries, http.StatusBadRequest, "empty_series"},
	{backtest.ErrInvalidParameter, http.StatusBadRequest, "invalid_parameter"},
	{series.ErrDimensionMismatch, http.StatusBadRequest, "dimension_mismatch"},
	{signal.ErrUnsupportedOperator, http.StatusBadRequest, "unsupported_operator"},
	{signal.ErrCyclicCondition, http.StatusBadRequest, "cyclic_condition"},
	{signal.ErrUnknownRule, http.StatusBadRequest, "unknown_rule"},
	{signal.ErrDuplicateRule, http.StatusBadRequest, "duplicate_rule"},
	{strategy.ErrUnknownSeries, http.StatusBadRequest, "unknown_series"},
	{maxpain.ErrNoEligibleStrikes, http.StatusUnprocessableEntity, "no_eligible_strikes"},
	{context.Canceled, http.StatusServiceUnavailable, "cancelled"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

// fail writes the envelope for err, logging anything unexpected.
func (s *Server) fail(w http.ResponseWriter, err error) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.code, err.Error())
			return
		}
	}
	s.log.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}
