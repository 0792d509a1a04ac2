// Package service exposes the spectrum-inquiry protocol over HTTP: a
// gorilla/mux router, Prometheus request/grant metrics, and a bounded
// recent-request log for operator visibility, adapted from the teacher's
// telemetry.Hub mutex-guarded history pattern.
package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rjboer/afc-engine/internal/aggregate"
	"github.com/rjboer/afc-engine/internal/allocator"
	"github.com/rjboer/afc-engine/internal/logging"
	"github.com/rjboer/afc-engine/internal/params"
	"github.com/rjboer/afc-engine/internal/protocol"
)

// Metrics bundles the Prometheus collectors exercised per request, in the
// style of madpsy-ka9q_ubersdr's PrometheusMetrics.
type Metrics struct {
	requestsTotal  *prometheus.CounterVec
	requestLatency prometheus.Histogram
	grantsTotal    prometheus.Counter
	deniesTotal    prometheus.Counter
}

// NewMetrics registers the service's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afc_inquiry_requests_total",
			Help: "Total spectrum-inquiry requests by response code.",
		}, []string{"response_code"}),
		requestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "afc_inquiry_request_duration_seconds",
			Help: "Spectrum-inquiry request handling latency.",
		}),
		grantsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "afc_channel_grants_total",
			Help: "Total channel entries returned with a positive max EIRP.",
		}),
		deniesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "afc_channel_denies_total",
			Help: "Total channel entries returned with a zero or negative max EIRP.",
		}),
	}
}

// LogEntry is one recent spectrum-inquiry exchange, kept for the
// diagnostics endpoint. Bounded history with mutex-guarded append/evict
// mirrors telemetry.Hub's Sample history, repurposed from tracking
// telemetry to protocol audit.
type LogEntry struct {
	RequestID    string    `json:"requestId"`
	Timestamp    time.Time `json:"timestamp"`
	ResponseCode int       `json:"responseCode"`
}

// RequestLog is a bounded, mutex-guarded ring of recent LogEntry values.
type RequestLog struct {
	mu    sync.RWMutex
	limit int
	items []LogEntry
}

// NewRequestLog builds a RequestLog retaining at most limit entries.
func NewRequestLog(limit int) *RequestLog {
	if limit <= 0 {
		limit = 200
	}
	return &RequestLog{limit: limit}
}

func (l *RequestLog) append(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, entry)
	if len(l.items) > l.limit {
		l.items = l.items[len(l.items)-l.limit:]
	}
}

// Recent returns a copy of the current log.
func (l *RequestLog) Recent() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LogEntry, len(l.items))
	copy(out, l.items)
	return out
}

// Config configures the AFC HTTP service.
type Config struct {
	Addr string
}

// Server wires the spectrum-inquiry protocol behind an HTTP API.
type Server struct {
	cfg        Config
	httpServer *http.Server
	logger     logging.Logger
	metrics    *Metrics
	reqLog     *RequestLog
	paramSet   params.ParameterSet
	incumbents []params.Incumbent
	policy     protocol.Policy
}

// New builds a Server for a fixed parameter set, incumbent list, and
// device policy.
func New(cfg Config, logger logging.Logger, reg prometheus.Registerer, paramSet params.ParameterSet, incumbents []params.Incumbent, policy protocol.Policy) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		metrics:    NewMetrics(reg),
		reqLog:     NewRequestLog(200),
		paramSet:   paramSet,
		incumbents: incumbents,
		policy:     policy,
	}

	router := mux.NewRouter()
	router.HandleFunc("/availableSpectrumInquiry", s.handleInquiry).Methods(http.MethodPost)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/recent", s.handleRecent).Methods(http.MethodGet)
	router.HandleFunc("/api/bands", s.handleBands).Methods(http.MethodGet)
	router.HandleFunc("/aggregateInterferenceInquiry", s.handleAggregateInquiry).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.HandlerFor(reg.(prometheus.Gatherer), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.httpServer = &http.Server{Addr: cfg.Addr, Handler: router}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRecent(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.reqLog.Recent())
}

// bandRange is the JSON-facing shape of a standard 6 GHz sub-band.
type bandRange struct {
	LowMHz  float64 `json:"lowMHz"`
	HighMHz float64 `json:"highMHz"`
}

// handleBands reports the standard UNII-5/UNII-7 sub-bands this server
// evaluates grants over, letting a client discover the regulatory band
// edges without inquiring at every frequency.
func (s *Server) handleBands(w http.ResponseWriter, _ *http.Request) {
	bands := allocator.StandardBands()
	out := make([]bandRange, len(bands))
	for i, b := range bands {
		out[i] = bandRange{LowMHz: b[0], HighMHz: b[1]}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleInquiry(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()

	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("malformed spectrum inquiry request", logging.Field{Key: "request_id", Value: requestID}, logging.Field{Key: "error", Value: err.Error()})
		resp := &protocol.Response{ResponseCode: protocol.ResponseInvalidValue}
		s.writeResponse(w, requestID, resp, start)
		return
	}

	resp := protocol.HandleAvailableSpectrumInquiry(req, s.paramSet, s.incumbents, s.policy)
	s.writeResponse(w, requestID, resp, start)
}

// aggregateInquiryRequest carries the simultaneous AP deployment and
// channel list for a supplemental multi-AP aggregate-interference check
// (§4.J), exposed alongside the single-AP availableSpectrumInquiry path.
type aggregateInquiryRequest struct {
	APSites  []aggregate.APSite `json:"apSites"`
	Channels [][2]float64       `json:"channels"`
}

func (s *Server) handleAggregateInquiry(w http.ResponseWriter, r *http.Request) {
	var req aggregateInquiryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("malformed aggregate inquiry request", logging.Field{Key: "error", Value: err.Error()})
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	channels := req.Channels
	if len(channels) == 0 {
		for _, band := range allocator.StandardBands() {
			channels = append(channels, [2]float64{band[0] + 20, 20})
		}
	}

	summaries, err := aggregate.EvaluateAggregateAcross(s.incumbents, req.APSites, channels, aggregate.Options{ParamSet: s.paramSet})
	if err != nil {
		s.logger.Warn("aggregate inquiry evaluation failed", logging.Field{Key: "error", Value: err.Error()})
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summaries)
}

func (s *Server) writeResponse(w http.ResponseWriter, requestID string, resp *protocol.Response, start time.Time) {
	s.metrics.requestsTotal.WithLabelValues(responseCodeLabel(resp.ResponseCode)).Inc()
	s.metrics.requestLatency.Observe(time.Since(start).Seconds())

	for _, info := range resp.AvailableChannelInfo {
		for _, eirp := range info.MaxEirp {
			if eirp > 0 {
				s.metrics.grantsTotal.Inc()
			} else {
				s.metrics.deniesTotal.Inc()
			}
		}
	}

	s.reqLog.append(LogEntry{RequestID: requestID, Timestamp: start, ResponseCode: resp.ResponseCode})
	s.logger.Info("spectrum inquiry handled",
		logging.Field{Key: "request_id", Value: requestID},
		logging.Field{Key: "response_code", Value: resp.ResponseCode},
		logging.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	_ = json.NewEncoder(w).Encode(resp)
}

func responseCodeLabel(code int) string {
	switch code {
	case protocol.ResponseSuccess:
		return "success"
	case protocol.ResponseDeviceDisallowed:
		return "device_disallowed"
	case protocol.ResponseMissingParam:
		return "missing_param"
	case protocol.ResponseInvalidValue:
		return "invalid_value"
	case protocol.ResponseUnexpectedParam:
		return "unexpected_param"
	case protocol.ResponseUnsupportedBasis:
		return "unsupported_basis"
	default:
		return "unknown"
	}
}

// Start begins listening and shuts down when ctx is canceled, mirroring
// the teacher's telemetry.WebServer.Start shutdown pattern.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("afc service shutdown", logging.Field{Key: "error", Value: err.Error()})
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
