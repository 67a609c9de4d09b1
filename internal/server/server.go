// Package server exposes the conversational endpoint and the audit
// checklist REST surface.
package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/riskpilot-core/server/internal/agent/graph"
	"github.com/riskpilot-core/server/internal/agent/graph/tools"
	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/internal/audit"
	errx "github.com/riskpilot-core/server/internal/core/errorx"
	"github.com/riskpilot-core/server/internal/store"
	"github.com/riskpilot-core/server/internal/vector"
	"github.com/riskpilot-core/server/pkg/logger"
)

// userIDHeader carries the authenticated tenant id. Authentication itself
// happens upstream; the server trusts the header.
const userIDHeader = "X-User-ID"

// Stores bundles the persistence surfaces the server exposes directly.
type Stores struct {
	Risks    store.RiskStore
	Controls store.ControlStore
	Audits   store.AuditStore
}

type Server struct {
	echo   *echo.Echo
	runner *graph.Runner
	stores Stores
	index  vector.Indexer
}

// New builds the HTTP surface. index receives saved risks and controls so
// the semantic search tools see them on later turns.
func New(runner *graph.Runner, stores Stores, index vector.Indexer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, runner: runner, stores: stores, index: index}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)
	s.echo.POST("/chat", s.chat)
	s.echo.DELETE("/chat/:sessionID", s.resetSession)

	r := s.echo.Group("/risks")
	r.POST("", s.saveRisks)
	r.GET("", s.listRisks)
	r.GET("/:riskID", s.getRisk)
	r.PATCH("/:riskID", s.updateRiskField)
	r.DELETE("/:riskID", s.deleteRisk)

	cg := s.echo.Group("/controls")
	cg.POST("", s.saveControls)
	cg.GET("", s.listControls)
	cg.GET("/:controlID", s.getControl)
	cg.DELETE("/:controlID", s.deleteControl)

	g := s.echo.Group("/audit")
	g.POST("/checklist", s.seedChecklist)
	g.GET("/items", s.listItems)
	g.GET("/items/next", s.nextItem)
	g.GET("/progress", s.progress)
	g.POST("/items/:itemID/answer", s.answerItem)
	g.POST("/items/:itemID/skip", s.skipItem)
	g.POST("/items/:itemID/reset", s.resetItem)
	g.POST("/items/:itemID/exclude", s.excludeItem)
	g.DELETE("/items/:itemID", s.deleteItem)
	g.POST("/items/:itemID/evidence", s.addEvidence)
	g.DELETE("/items/:itemID/evidence/:evidenceID", s.removeEvidence)
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ChatRequest is the conversational entry point's payload.
type ChatRequest struct {
	SessionID        string `json:"session_id"`
	Message          string `json:"message"`
	OrganizationName string `json:"organization_name"`
	Location         string `json:"location"`
	Domain           string `json:"domain"`
}

func (s *Server) chat(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" || req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id and message are required")
	}

	res, err := s.runner.Run(c.Request().Context(), model.TurnInput{
		SessionID: req.SessionID,
		Message:   req.Message,
		User: model.UserData{
			UserID:           userID,
			OrganizationName: req.OrganizationName,
			Location:         req.Location,
			Domain:           req.Domain,
		},
	})
	if err != nil {
		return appErr(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) resetSession(c echo.Context) error {
	if _, err := requireUser(c); err != nil {
		return err
	}
	if err := s.runner.Reset(c.Request().Context(), c.Param("sessionID")); err != nil {
		return appErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type saveRisksRequest struct {
	Risks []model.Risk `json:"risks"`
}

// saveRisks persists risks the user selected from a generation turn and
// indexes them for semantic search. Index failures degrade search, not the
// save, so they are only logged.
func (s *Server) saveRisks(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	var req saveRisksRequest
	if err := c.Bind(&req); err != nil || len(req.Risks) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "risks are required")
	}
	for i := range req.Risks {
		if req.Risks[i].ID == "" {
			req.Risks[i].ID = uuid.NewString()
		}
	}
	ctx := c.Request().Context()
	if err := s.stores.Risks.SaveRisks(ctx, userID, req.Risks); err != nil {
		return appErr(err)
	}
	docs := make([]vector.Document, 0, len(req.Risks))
	for _, r := range req.Risks {
		docs = append(docs, vector.Document{
			ID:   r.ID,
			Text: r.Title + ": " + r.Description,
			Metadata: map[string]any{
				"user_id":  userID,
				"risk_id":  r.RiskID,
				"category": r.Category,
			},
		})
	}
	if err := s.index.Index(ctx, tools.CollectionRisks, docs...); err != nil {
		logx.Warn().Err(err).Str("user", userID).Msg("risk indexing failed")
	}
	return c.JSON(http.StatusCreated, map[string]any{"status": "saved", "saved_count": len(req.Risks)})
}

func (s *Server) listRisks(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	risks, err := s.stores.Risks.ListRisks(c.Request().Context(), userID)
	if err != nil {
		return appErr(err)
	}
	return c.JSON(http.StatusOK, risks)
}

func (s *Server) getRisk(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	r, err := s.stores.Risks.GetRisk(c.Request().Context(), userID, c.Param("riskID"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "risk not found")
	}
	if err != nil {
		return appErr(err)
	}
	return c.JSON(http.StatusOK, r)
}

type updateFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s *Server) updateRiskField(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	var req updateFieldRequest
	if err := c.Bind(&req); err != nil || req.Field == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "field is required")
	}
	err = s.stores.Risks.UpdateRiskField(c.Request().Context(), userID, c.Param("riskID"), req.Field, req.Value)
	if errors.Is(err, store.ErrInvalidField) {
		return echo.NewHTTPError(http.StatusBadRequest, "field is not updatable")
	}
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "risk not found")
	}
	if err != nil {
		return appErr(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) deleteRisk(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	err = s.stores.Risks.DeleteRisk(c.Request().Context(), userID, c.Param("riskID"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "risk not found")
	}
	if err != nil {
		return appErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type saveControlsRequest struct {
	Controls []model.Control `json:"controls"`
}

// saveControls persists controls the user selected from the generation
// popup and indexes them for semantic search.
func (s *Server) saveControls(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	var req saveControlsRequest
	if err := c.Bind(&req); err != nil || len(req.Controls) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "controls are required")
	}
	for i := range req.Controls {
		if req.Controls[i].ID == "" {
			req.Controls[i].ID = uuid.NewString()
		}
	}
	ctx := c.Request().Context()
	if err := s.stores.Controls.SaveControls(ctx, userID, req.Controls); err != nil {
		return appErr(err)
	}
	docs := make([]vector.Document, 0, len(req.Controls))
	for _, ctl := range req.Controls {
		docs = append(docs, vector.Document{
			ID:   ctl.ID,
			Text: ctl.Title + ": " + ctl.Description,
			Metadata: map[string]any{
				"user_id":    userID,
				"control_id": ctl.ControlID,
				"category":   ctl.Category,
			},
		})
	}
	if err := s.index.Index(ctx, tools.CollectionControls, docs...); err != nil {
		logx.Warn().Err(err).Str("user", userID).Msg("control indexing failed")
	}
	return c.JSON(http.StatusCreated, map[string]any{"status": "saved", "saved_count": len(req.Controls)})
}

func (s *Server) listControls(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	var controls []model.Control
	if annex := c.QueryParam("annex"); annex != "" {
		controls, err = s.stores.Controls.ListControlsByAnnex(ctx, userID, annex)
	} else {
		controls, err = s.stores.Controls.ListControls(ctx, userID)
	}
	if err != nil {
		return appErr(err)
	}
	return c.JSON(http.StatusOK, controls)
}

func (s *Server) getControl(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	ctl, err := s.stores.Controls.GetControl(c.Request().Context(), userID, c.Param("controlID"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "control not found")
	}
	if err != nil {
		return appErr(err)
	}
	return c.JSON(http.StatusOK, ctl)
}

func (s *Server) deleteControl(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	err = s.stores.Controls.DeleteControl(c.Request().Context(), userID, c.Param("controlID"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "control not found")
	}
	if err != nil {
		return appErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) seedChecklist(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	if err := s.stores.Audits.SeedChecklist(c.Request().Context(), userID, audit.DefaultChecklist()); err != nil {
		return appErr(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "seeded"})
}

func (s *Server) listItems(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	items, err := s.stores.Audits.ListItems(c.Request().Context(), userID)
	if err != nil {
		return appErr(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) nextItem(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	t := audit.ItemType(c.QueryParam("type"))
	if t != audit.TypeAnnex {
		t = audit.TypeClause
	}
	item, err := s.stores.Audits.NextActionable(c.Request().Context(), userID, t)
	if errors.Is(err, store.ErrNotFound) {
		return c.NoContent(http.StatusNoContent)
	}
	if err != nil {
		return appErr(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) progress(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	snap, err := s.stores.Audits.Progress(c.Request().Context(), userID)
	if err != nil {
		return appErr(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"progress": snap,
		"phase":    audit.ComputePhase(snap),
		"complete": audit.Complete(snap),
	})
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) answerItem(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	var req answerRequest
	if err := c.Bind(&req); err != nil || req.Answer == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "answer is required")
	}
	return s.mutate(c, s.stores.Audits.SubmitAnswer(c.Request().Context(), userID, c.Param("itemID"), req.Answer))
}

func (s *Server) skipItem(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	return s.mutate(c, s.stores.Audits.MarkSkipped(c.Request().Context(), userID, c.Param("itemID")))
}

func (s *Server) resetItem(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	return s.mutate(c, s.stores.Audits.ResetToPending(c.Request().Context(), userID, c.Param("itemID")))
}

func (s *Server) excludeItem(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	return s.mutate(c, s.stores.Audits.Exclude(c.Request().Context(), userID, c.Param("itemID")))
}

func (s *Server) deleteItem(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	return s.mutate(c, s.stores.Audits.DeleteItem(c.Request().Context(), userID, c.Param("itemID")))
}

type evidenceRequest struct {
	FileName string         `json:"file_name"`
	FileURL  string         `json:"file_url"`
	Note     string         `json:"note"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) addEvidence(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	var req evidenceRequest
	if err := c.Bind(&req); err != nil || req.FileName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "file_name is required")
	}
	ev := audit.Evidence{
		FileName: req.FileName,
		FileURL:  req.FileURL,
		Note:     req.Note,
		Metadata: req.Metadata,
	}
	return s.mutate(c, s.stores.Audits.AppendEvidence(c.Request().Context(), userID, c.Param("itemID"), ev))
}

func (s *Server) removeEvidence(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	return s.mutate(c, s.stores.Audits.RemoveEvidence(c.Request().Context(), userID, c.Param("itemID"), c.Param("evidenceID")))
}

func (s *Server) mutate(c echo.Context, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "item not found")
	}
	if err != nil {
		return appErr(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func requireUser(c echo.Context) (string, error) {
	userID := c.Request().Header.Get(userIDHeader)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing "+userIDHeader+" header")
	}
	return userID, nil
}

// appErr maps internal errors onto HTTP errors without leaking detail.
func appErr(err error) error {
	var ae *errx.AppError
	if errors.As(err, &ae) {
		logx.Error().Err(ae.Err).Int("status", ae.Status).Msg(ae.Message)
		return echo.NewHTTPError(ae.Status, ae.Message)
	}
	logx.Error().Err(err).Msg("request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, errx.SystemErrorMessage)
}
