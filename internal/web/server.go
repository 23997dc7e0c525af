package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lucasnoah/explainforge/internal/agent"
	"github.com/lucasnoah/explainforge/internal/config"
	"github.com/lucasnoah/explainforge/internal/events"
	"github.com/lucasnoah/explainforge/internal/journal"
	"github.com/lucasnoah/explainforge/internal/orchestrator"
	"github.com/lucasnoah/explainforge/internal/provision"
	"github.com/lucasnoah/explainforge/internal/repomon"
	"github.com/lucasnoah/explainforge/internal/scan"
	"github.com/lucasnoah/explainforge/internal/session"
	"github.com/lucasnoah/explainforge/internal/source"
)

// recentEventLimit caps the journal slice returned on the status endpoint.
const recentEventLimit = 20

// Server exposes the workflow engine over HTTP: process control, approvals,
// repository management, and a per-session SSE event stream.
type Server struct {
	cfg      *config.Config
	orch     *orchestrator.Orchestrator
	registry *session.Registry
	prov     *provision.Provisioner
	monitor  *repomon.Monitor
	jour     *journal.DB
	bus      *events.Bus
	fetcher  source.Fetcher
	logger   *slog.Logger
}

// NewServer wires the API over an already-constructed engine. jour may be
// nil; the status endpoint then omits recent events.
func NewServer(
	cfg *config.Config,
	orch *orchestrator.Orchestrator,
	registry *session.Registry,
	prov *provision.Provisioner,
	monitor *repomon.Monitor,
	jour *journal.DB,
	bus *events.Bus,
	fetcher source.Fetcher,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		orch:     orch,
		registry: registry,
		prov:     prov,
		monitor:  monitor,
		jour:     jour,
		bus:      bus,
		fetcher:  fetcher,
		logger:   logger,
	}
}

// Router builds the chi route tree. /health is unauthenticated; everything
// under /api sits behind the bearer token when one is configured.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(s.logger))
	r.Use(Recovery(s.logger))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(s.cfg.Server.AuthToken))

		r.Route("/api", func(r chi.Router) {
			r.Post("/process", s.handleProcess)
			r.Post("/approve", s.handleApprove)
			r.Post("/terminate", s.handleTerminate)
			r.Post("/feedback", s.handleFeedback)
			r.Get("/status/{session}", s.handleStatus)
			r.Get("/pending/{session}/{step}", s.handlePending)
			r.Post("/repository/test", s.handleRepoTest)
			r.Post("/repository/analyze", s.handleRepoAnalyze)
			r.Get("/stream/{session}", s.handleStream)
		})
	})

	return r
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully with a short drain window.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("http server listening", "addr", srv.Addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"monitor": s.monitor.State(),
	})
}

type processRequest struct {
	Content    string       `json:"content,omitempty"`
	Audience   string       `json:"audience,omitempty"`
	Kinds      []string     `json:"kinds,omitempty"`
	MaxResults int          `json:"max_results,omitempty"`
	Repository *repoRequest `json:"repository,omitempty"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	input := req.Content
	if input == "" {
		fetched, err := s.fetchInput(r.Context(), req.Kinds, req.MaxResults)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		input = fetched
	}
	if input == "" {
		writeError(w, http.StatusBadRequest, "no input content")
		return
	}
	if req.Audience != "" {
		input += "\n\nAudience: " + req.Audience
	}

	// Repository settings on the request connect the monitor before the
	// workflow starts, so its poll loop is live from the first stage.
	if req.Repository != nil && req.Repository.RepoURL != "" {
		cfg, err := s.prov.SetConfig(provision.DefaultSessionID, req.Repository.overrides())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.monitor.Connect(r.Context(), cfg); err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
	}

	// The workflow outlives this request; it runs on its own context and is
	// stopped through /api/terminate.
	sid, err := s.orch.StartWorkflow(context.Background(), input)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id": sid,
		"stages":     s.orch.StageOrder(),
	})
}

// fetchInput pulls input items from the configured fetcher, falling back to
// the config's kinds and cap when the request leaves them unset.
func (s *Server) fetchInput(ctx context.Context, kinds []string, maxResults int) (string, error) {
	if s.fetcher == nil {
		return "", nil
	}
	if len(kinds) == 0 {
		kinds = s.cfg.Source.Kinds
	}
	if maxResults == 0 {
		maxResults = s.cfg.Source.MaxResults
	}

	var items []source.Item
	for _, kind := range kinds {
		fetched, err := s.fetcher.FetchItems(ctx, kind, maxResults)
		if err != nil {
			return "", fmt.Errorf("fetching %s items: %w", kind, err)
		}
		items = append(items, fetched...)
	}
	return source.Combine(items), nil
}

type approveRequest struct {
	SessionID  string `json:"session_id"`
	Stage      string `json:"stage"`
	Approved   bool   `json:"approved"`
	EditedText string `json:"edited_text,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" || req.Stage == "" {
		writeError(w, http.StatusBadRequest, "session_id and stage are required")
		return
	}

	var err error
	if req.Approved {
		err = s.orch.Approve(req.SessionID, req.Stage, req.EditedText)
	} else {
		err = s.orch.Reject(req.SessionID, req.Stage, req.Reason)
	}
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type terminateRequest struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	var req terminateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := s.orch.Terminate(req.SessionID, req.Reason); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "terminating"})
}

type feedbackRequest struct {
	SessionID   string `json:"session_id"`
	Explanation string `json:"explanation"`
	Feedback    string `json:"feedback"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" || req.Explanation == "" || req.Feedback == "" {
		writeError(w, http.StatusBadRequest, "session_id, explanation and feedback are required")
		return
	}

	res, err := s.orch.Feedback(r.Context(), req.SessionID, req.Explanation, req.Feedback)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feedback":          req.Feedback,
		"learning_insights": res.Output,
		"result":            res,
	})
}

type statusResponse struct {
	Session      *session.State          `json:"session"`
	Agents       []agent.Status          `json:"agents"`
	Monitor      repomon.State           `json:"monitor"`
	Pending      []string                `json:"pending_approvals"`
	RecentEvents []journal.WorkflowEvent `json:"recent_events,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "session")

	st := s.registry.Snapshot()
	if st == nil || st.ID != sid {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	resp := statusResponse{
		Session: st,
		Agents:  s.orch.AgentStatuses(),
		Monitor: s.monitor.State(),
		Pending: s.orch.PendingApprovals(sid),
	}
	if s.jour != nil {
		evs, err := s.jour.WorkflowHistory(sid)
		if err != nil {
			s.logger.Warn("journal read failed", "error", err)
		} else if len(evs) > recentEventLimit {
			resp.RecentEvents = evs[:recentEventLimit]
		} else {
			resp.RecentEvents = evs
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "session")
	step := chi.URLParam(r, "step")

	res, ok := s.orch.PendingResult(sid, step)
	if !ok {
		writeError(w, http.StatusNotFound, "no pending approval for step")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type repoRequest struct {
	SessionID string `json:"session_id,omitempty"`
	RepoURL   string `json:"repo_url"`
	Branch    string `json:"branch,omitempty"`
	Username  string `json:"username,omitempty"`
	Token     string `json:"token,omitempty"`
}

func (r repoRequest) overrides() provision.Overrides {
	return provision.Overrides{
		RepoURL:  r.RepoURL,
		Branch:   r.Branch,
		Username: r.Username,
		Token:    r.Token,
	}
}

// handleRepoTest tries connecting with the candidate settings, then puts the
// monitor back the way it was. Nothing is persisted in the provisioner.
func (s *Server) handleRepoTest(w http.ResponseWriter, r *http.Request) {
	var req repoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, "repo_url is required")
		return
	}

	prev := s.monitor.Config()
	prevConnected := s.monitor.State() != repomon.StateDisconnected

	cfg := s.prov.GetConfig(provision.DefaultSessionID)
	cfg.SessionID = provision.DefaultSessionID
	if cfg.RepoPath == "" {
		path, err := s.prov.RepoPath(provision.DefaultSessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cfg.RepoPath = path
	}
	cfg.RepoURL = req.RepoURL
	if req.Branch != "" {
		cfg.Branch = req.Branch
	}
	if req.Username != "" {
		cfg.Username = req.Username
	}
	if req.Token != "" {
		cfg.Token = req.Token
	}

	connectErr := s.monitor.Connect(r.Context(), cfg)

	// Restore prior settings regardless of the test outcome.
	if prevConnected {
		if err := s.monitor.Connect(r.Context(), prev); err != nil {
			s.logger.Warn("restoring previous repository connection failed", "error", err)
			s.monitor.Disconnect()
		}
	} else {
		s.monitor.Disconnect()
	}

	if connectErr != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": connectErr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleRepoAnalyze runs a manual out-of-band analysis pass. With repository
// settings on the request it configures and connects first; without them it
// polls the already-connected monitor.
func (s *Server) handleRepoAnalyze(w http.ResponseWriter, r *http.Request) {
	var req repoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sid := req.SessionID
	if sid == "" {
		if st := s.registry.Snapshot(); st != nil && !st.Frozen() {
			sid = st.ID
		} else {
			sid = provision.DefaultSessionID
		}
	}

	if req.RepoURL != "" {
		cfg, err := s.prov.SetConfig(sid, req.overrides())
		if err != nil {
			if errors.Is(err, provision.ErrUnsafePath) {
				writeError(w, http.StatusBadRequest, err.Error())
			} else {
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		if err := s.monitor.Connect(r.Context(), cfg); err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
	} else if s.monitor.State() == repomon.StateDisconnected {
		writeError(w, http.StatusBadRequest, "no repository connected: pass repo_url")
		return
	}

	// The monitor's config is a snapshot taken at Connect time; the scan
	// commit advances in the provisioner, so read it from there.
	firstRun := s.prov.GetConfig(s.monitor.Config().SessionID).LastScanCommit == ""
	cs, err := s.monitor.CheckForChanges(r.Context(), firstRun)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if !cs.HasChanges {
		writeJSON(w, http.StatusOK, map[string]any{"changes": false})
		return
	}

	issues := s.monitor.Scan(r.Context(), cs.ChangedFiles)
	counts := scan.CountBySeverity(issues)
	if i := strings.Index(cs.CommitRange, ".."); i >= 0 {
		s.prov.UpdateScanCommit(s.monitor.Config().SessionID, cs.CommitRange[i+2:])
	}

	if s.jour != nil {
		summary := repomon.ChangeSummary(cs)
		if _, err := s.jour.RecordScanRun(sid, cs.CommitRange, len(cs.ChangedFiles), len(issues),
			counts[scan.SeverityHigh], counts[scan.SeverityMedium], counts[scan.SeverityLow], summary); err != nil {
			s.logger.Warn("recording scan run failed", "error", err)
		}
	}

	cfg := s.monitor.Config()
	cfg.Token = "" // never echo credentials
	writeJSON(w, http.StatusOK, map[string]any{
		"changes":       true,
		"config":        cfg,
		"commit_range":  cs.CommitRange,
		"files_changed": len(cs.ChangedFiles),
		"issues":        len(issues),
		"high":          counts[scan.SeverityHigh],
		"medium":        counts[scan.SeverityMedium],
		"low":           counts[scan.SeverityLow],
		"report":        repomon.FormatReport(cs, issues),
	})
}
