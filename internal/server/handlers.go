package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kaigo-labs/omoide/internal/classify"
	"github.com/kaigo-labs/omoide/internal/graph"
	"github.com/kaigo-labs/omoide/internal/model"
	"github.com/kaigo-labs/omoide/internal/preprocess"
	"github.com/kaigo-labs/omoide/internal/recency"
	"github.com/kaigo-labs/omoide/internal/service/embedding"
	"github.com/kaigo-labs/omoide/internal/session"
	"github.com/kaigo-labs/omoide/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db           *storage.DB
	sess         *session.Context
	graphCfg     graph.Config
	router       *classify.Router
	preprocessor preprocess.Preprocessor
	embedder     embedding.Provider
	logger       *slog.Logger
	version      string
}

// HandlersDeps configures Handlers.
type HandlersDeps struct {
	DB           *storage.DB
	Session      *session.Context
	GraphConfig  graph.Config
	Router       *classify.Router
	Preprocessor preprocess.Preprocessor
	Embedder     embedding.Provider
	Logger       *slog.Logger
	Version      string
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		db:           deps.DB,
		sess:         deps.Session,
		graphCfg:     deps.GraphConfig,
		router:       deps.Router,
		preprocessor: deps.Preprocessor,
		embedder:     deps.Embedder,
		logger:       deps.Logger,
		version:      deps.Version,
	}
}

// HandleInvoke serves POST /invoke: the single conversational entrypoint.
// flow_type picks the orchestration graph; qa and topic, when supplied
// together, bypass the offline classifiers.
func (h *Handlers) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	var req model.InvokeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if len(req.Text) > model.MaxTextLen {
		writeError(w, http.StatusBadRequest, "text too long")
		return
	}
	if req.FlowType != model.FlowOffline && req.FlowType != model.FlowOnline {
		writeError(w, http.StatusBadRequest, "flow_type must be \"offline\" or \"online\"")
		return
	}

	ctx := r.Context()

	// Only the first sentence flows downstream. A preprocessor outage is
	// not worth failing the request over; fall back to the raw text.
	query, err := preprocess.FirstSentence(ctx, h.preprocessor, req.Text)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}
		h.logger.Warn("preprocessor failed, using raw text", "error", err)
		if query, err = preprocess.FirstSentence(ctx, preprocess.Splitter{}, req.Text); err != nil {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}
	}

	var result graph.Result
	switch req.FlowType {
	case model.FlowOnline:
		result, err = graph.NewOnline(h.sess, h.graphCfg, h.logger).Run(ctx, query)
	default:
		qa, topics, rerr := h.route(ctx, query, req)
		if rerr != nil {
			h.logger.Error("routing failed", "error", rerr)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		result, err = graph.NewOffline(h.sess, h.graphCfg, h.logger).Run(ctx, query, qa, topics)
	}
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("flow run failed", "flow", req.FlowType, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, model.InvokeResponse{
		UserQuery:   result.UserQuery,
		FinalChunks: result.FinalChunks,
		Inserted:    result.Inserted,
	})
}

// route resolves qa/topics for the offline flow, honoring caller overrides
// when both are present.
func (h *Handlers) route(ctx context.Context, query string, req model.InvokeRequest) (model.QAType, []model.Bucket, error) {
	if (req.QA == model.QAQuestion || req.QA == model.QAStatement) && len(req.Topic) > 0 {
		topics := make([]model.Bucket, 0, len(req.Topic))
		for _, t := range req.Topic {
			topics = append(topics, model.Bucket(t))
		}
		return req.QA, h.router.Normalize(topics), nil
	}
	routed, err := h.router.Route(ctx, query)
	if err != nil {
		return "", nil, err
	}
	return routed.QAType, routed.Topics, nil
}

// HandleCreateProfile serves POST /v1/profiles.
func (h *Handlers) HandleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req model.CreateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	profile, err := h.db.CreateProfile(r.Context(), model.Profile{
		Name:          req.Name,
		Gender:        req.Gender,
		DateOfBirth:   req.DateOfBirth,
		Nationality:   req.Nationality,
		Dialect:       req.Dialect,
		MaritalStatus: req.MaritalStatus,
		Address:       req.Address,
	})
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("create profile failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

// HandleGetProfile serves GET /v1/profiles/{profile_id}.
func (h *Handlers) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("profile_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	profile, err := h.db.GetProfile(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		h.logger.Error("get profile failed", "error", err, "profile_id", id)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleInsertLongTerm serves POST /v1/memories/long-term. Caregiver
// tooling writes long-term facts here; the conversational flows never do.
func (h *Handlers) HandleInsertLongTerm(w http.ResponseWriter, r *http.Request) {
	var req model.InsertLongTermRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	elderlyID, err := uuid.Parse(req.ElderlyID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid elderly_id")
		return
	}

	emb := h.embedText(r, req.Key+": "+req.Value)
	id, lastUpdated, err := h.db.InsertLongTerm(r.Context(), elderlyID,
		model.LTMCategory(req.Category), req.Key, req.Value, emb)
	if err != nil {
		h.writeStorageError(w, err, "insert long-term")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "last_updated": lastUpdated})
}

// HandleInsertHealthcare serves POST /v1/memories/healthcare.
func (h *Handlers) HandleInsertHealthcare(w http.ResponseWriter, r *http.Request) {
	var req model.InsertHealthcareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	elderlyID, err := uuid.Parse(req.ElderlyID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid elderly_id")
		return
	}

	var diagnosisDate *time.Time
	if req.DiagnosisDate != "" {
		ts, err := recency.Parse(req.DiagnosisDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid diagnosis_date")
			return
		}
		diagnosisDate = &ts
	}

	emb := h.embedText(r, req.Description)
	id, lastUpdated, err := h.db.InsertHealthcare(r.Context(), elderlyID,
		model.RecordType(req.RecordType), req.Description, diagnosisDate, emb)
	if err != nil {
		h.writeStorageError(w, err, "insert healthcare")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "last_updated": lastUpdated})
}

// HandleHealth serves GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable", "version": h.version,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}

// embedText embeds text for a caregiver insert. Best-effort: rows are
// written without vectors when the embedding backend is down.
func (h *Handlers) embedText(r *http.Request, text string) *pgvector.Vector {
	v, err := h.embedder.Embed(r.Context(), text)
	if err != nil {
		h.logger.Warn("embed failed for caregiver insert, storing without vector", "error", err)
		return nil
	}
	return &v
}

func (h *Handlers) writeStorageError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, model.ErrValidation) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}
