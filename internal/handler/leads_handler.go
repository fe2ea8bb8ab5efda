package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Leads: GET/POST /v1/leads, GET /v1/leads/{leadId}
// ============================================================

func listLeadsHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads")
		defer span.End()

		filter := domain.LeadFilter{AssignedAgent: r.URL.Query().Get("agent")}
		if s := r.URL.Query().Get("status"); s != "" {
			st, err := domain.ParseStage(s)
			if err != nil {
				handleServiceError(w, r, err, logger)
				return
			}
			filter.Status = st
		}

		leads, err := svc.ListLeads(ctx, filter)
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[*domain.Lead]{Data: leads, Total: len(leads)})
	}
}

func createLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads")
		defer span.End()

		var req domain.CreateLeadRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		lead, err := svc.CreateLead(ctx, ActorFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, lead)
	}
}

func getLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads/{leadId}")
		defer span.End()

		id := chi.URLParam(r, "leadId")
		span.SetAttributes(attribute.String("lead.id", id))
		lead, err := svc.GetLead(ctx, id)
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

func assignLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/leads/{leadId}/assignment")
		defer span.End()

		var req domain.AssignLeadRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		lead, err := svc.AssignLead(ctx, chi.URLParam(r, "leadId"), ActorFromContext(ctx), req.AgentID)
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

// ============================================================
// Pipeline: transition, quality gate, qualification
// ============================================================

func transitionHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/transition")
		defer span.End()

		var req domain.TransitionRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		span.SetAttributes(attribute.String("lead.stage", req.Stage))

		result, err := svc.Transition(ctx, chi.URLParam(r, "leadId"), ActorFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func qualityGateStatusHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads/{leadId}/quality-gate")
		defer span.End()

		status, err := svc.QualityGateStatus(ctx, chi.URLParam(r, "leadId"))
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func evaluateQualityGateHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/quality-gate")
		defer span.End()

		result, err := svc.EvaluateQualityGate(ctx, chi.URLParam(r, "leadId"), ActorFromContext(ctx))
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func qualificationHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/leads/{leadId}/qualification")
		defer span.End()

		var req domain.QualificationRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		lead, err := svc.UpdateQualification(ctx, chi.URLParam(r, "leadId"), ActorFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

// ============================================================
// Follow-ups
// ============================================================

func getFollowUpHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads/{leadId}/follow-up")
		defer span.End()

		view, err := svc.FollowUp(ctx, chi.URLParam(r, "leadId"))
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func scheduleFollowUpHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/leads/{leadId}/follow-up")
		defer span.End()

		var req domain.ScheduleFollowUpRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		lead, err := svc.ScheduleFollowUp(ctx, chi.URLParam(r, "leadId"), ActorFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

type completeFollowUpResponse struct {
	Lead    *domain.Lead `json:"lead"`
	Changed bool         `json:"changed"`
}

func completeFollowUpHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/follow-up/complete")
		defer span.End()

		lead, changed, err := svc.CompleteFollowUp(ctx, chi.URLParam(r, "leadId"), ActorFromContext(ctx))
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, completeFollowUpResponse{Lead: lead, Changed: changed})
	}
}

func followUpQueueHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/follow-ups")
		defer span.End()

		agent := r.URL.Query().Get("agent")
		if agent == "" {
			agent = ActorFromContext(ctx)
		}
		queue, err := svc.FollowUpQueue(ctx, agent)
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, queue)
	}
}

// ============================================================
// Cadence
// ============================================================

func startCadenceHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/cadence")
		defer span.End()

		var req domain.StartCadenceRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		lead, err := svc.StartCadence(ctx, chi.URLParam(r, "leadId"), ActorFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

// cadenceTasksHandler accepts an optional ?now=RFC3339 to preview the
// task buckets at another instant.
func cadenceTasksHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads/{leadId}/cadence/tasks")
		defer span.End()

		var at time.Time
		if s := r.URL.Query().Get("now"); s != "" {
			parsed, err := time.Parse(time.RFC3339, s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "now must be an RFC3339 timestamp")
				return
			}
			at = parsed
		}
		tasks, err := svc.CadenceTasks(ctx, chi.URLParam(r, "leadId"), at)
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

func completeTouchHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/cadence/touches/{index}/complete")
		defer span.End()

		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil || index < 0 {
			writeError(w, http.StatusBadRequest, "touch index must be a non-negative integer")
			return
		}
		lead, err := svc.CompleteTouch(ctx, chi.URLParam(r, "leadId"), ActorFromContext(ctx), index)
		if err != nil {
			handleServiceError(w, r, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

func cadenceTemplatesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tmpls := domain.Templates()
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.CadenceTemplate]{Data: tmpls, Total: len(tmpls)})
	}
}
