package httpapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"fieldtask/internal/domain"
	"fieldtask/internal/repository"
	"fieldtask/internal/service"
)

const templatesBasePath = "/admin/api/v1/templates"

// TemplatesHandler 模板管理 API
type TemplatesHandler struct {
	templates *service.TemplateService
	logger    *zap.Logger
}

func NewTemplatesHandler(templates *service.TemplateService, logger *zap.Logger) *TemplatesHandler {
	return &TemplatesHandler{templates: templates, logger: logger}
}

// templatePayload 创建/更新请求体
type templatePayload struct {
	Name                string                 `json:"name"`
	DefaultTitle        string                 `json:"defaultTitle"`
	DefaultDescription  string                 `json:"defaultDescription"`
	DefaultDivisionID   string                 `json:"defaultDivisionId"`
	DefaultCustomFields json.RawMessage        `json:"defaultCustomFields"`
	RecurrenceRule      *domain.RecurrenceRule `json:"recurrenceRule"`
}

// templateView 响应视图（sql.Null* 转为可空 JSON 字段）
type templateView struct {
	TemplateID          string                 `json:"templateId"`
	Name                string                 `json:"name"`
	DefaultTitle        string                 `json:"defaultTitle,omitempty"`
	DefaultDescription  string                 `json:"defaultDescription,omitempty"`
	DefaultDivisionID   string                 `json:"defaultDivisionId,omitempty"`
	DefaultCustomFields json.RawMessage        `json:"defaultCustomFields,omitempty"`
	IsActive            bool                   `json:"isActive"`
	RecurrenceRule      *domain.RecurrenceRule `json:"recurrenceRule,omitempty"`
	LastGeneratedAt     *time.Time             `json:"lastGeneratedAt,omitempty"`
	NextGenerationAt    *time.Time             `json:"nextGenerationAt,omitempty"`
	RotationIndex       int                    `json:"rotationIndex"`
}

func toTemplateView(t *domain.Template) templateView {
	v := templateView{
		TemplateID:          t.TemplateID,
		Name:                t.Name,
		DefaultTitle:        t.DefaultTitle,
		DefaultDescription:  t.DefaultDescription,
		DefaultCustomFields: t.DefaultCustomFields,
		IsActive:            t.IsActive,
		RecurrenceRule:      t.RecurrenceRule,
		RotationIndex:       t.RotationIndex,
	}
	if t.DefaultDivisionID.Valid {
		v.DefaultDivisionID = t.DefaultDivisionID.String
	}
	if t.LastGeneratedAt.Valid {
		ts := t.LastGeneratedAt.Time
		v.LastGeneratedAt = &ts
	}
	if t.NextGenerationAt.Valid {
		ts := t.NextGenerationAt.Time
		v.NextGenerationAt = &ts
	}
	return v
}

func (p *templatePayload) toDomain() *domain.Template {
	t := &domain.Template{
		Name:                p.Name,
		DefaultTitle:        p.DefaultTitle,
		DefaultDescription:  p.DefaultDescription,
		DefaultCustomFields: p.DefaultCustomFields,
		RecurrenceRule:      p.RecurrenceRule,
	}
	if p.DefaultDivisionID != "" {
		t.DefaultDivisionID = sql.NullString{String: p.DefaultDivisionID, Valid: true}
	}
	return t
}

func (h *TemplatesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, templatesBasePath)
	rest = strings.Trim(rest, "/")

	switch {
	case rest == "":
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	case rest == "export":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.export(w, r)

	case strings.HasSuffix(rest, "/activate"):
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.activate(w, r, strings.TrimSuffix(rest, "/activate"))

	case strings.HasSuffix(rest, "/deactivate"):
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.deactivate(w, r, strings.TrimSuffix(rest, "/deactivate"))

	case !strings.Contains(rest, "/"):
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, rest)
		case http.MethodPut:
			h.update(w, r, rest)
		case http.MethodDelete:
			h.delete(w, r, rest)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// GET /admin/api/v1/templates?active=&search=
func (h *TemplatesHandler) list(w http.ResponseWriter, r *http.Request) {
	filter := repository.TemplateFilters{
		Search: r.URL.Query().Get("search"),
	}
	if active := r.URL.Query().Get("active"); active != "" {
		isActive := active == "true"
		filter.IsActive = &isActive
	}

	items, err := h.templates.ListTemplates(r.Context(), filter)
	if err != nil {
		h.logger.Error("list templates failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	views := make([]templateView, 0, len(items))
	for _, t := range items {
		views = append(views, toTemplateView(t))
	}
	writeJSON(w, http.StatusOK, Ok(views))
}

func (h *TemplatesHandler) get(w http.ResponseWriter, r *http.Request, templateID string) {
	t, err := h.templates.GetTemplate(r.Context(), templateID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(toTemplateView(t)))
}

func (h *TemplatesHandler) create(w http.ResponseWriter, r *http.Request) {
	var payload templatePayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if payload.Name == "" {
		writeJSON(w, http.StatusBadRequest, Fail("name is required"))
		return
	}

	templateID, err := h.templates.CreateTemplate(r.Context(), payload.toDomain())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"templateId": templateID}))
}

func (h *TemplatesHandler) update(w http.ResponseWriter, r *http.Request, templateID string) {
	var payload templatePayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if err := h.templates.UpdateTemplate(r.Context(), templateID, payload.toDomain()); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"templateId": templateID}))
}

func (h *TemplatesHandler) delete(w http.ResponseWriter, r *http.Request, templateID string) {
	if err := h.templates.DeleteTemplate(r.Context(), templateID); err != nil {
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"templateId": templateID}))
}

// POST /admin/api/v1/templates/{id}/activate
func (h *TemplatesHandler) activate(w http.ResponseWriter, r *http.Request, templateID string) {
	nextAt, err := h.templates.ActivateTemplate(r.Context(), templateID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"templateId":       templateID,
		"nextGenerationAt": nextAt,
	}))
}

// POST /admin/api/v1/templates/{id}/deactivate
func (h *TemplatesHandler) deactivate(w http.ResponseWriter, r *http.Request, templateID string) {
	if err := h.templates.DeactivateTemplate(r.Context(), templateID); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"templateId": templateID}))
}

// GET /admin/api/v1/templates/export
func (h *TemplatesHandler) export(w http.ResponseWriter, r *http.Request) {
	items, err := h.templates.ListTemplates(r.Context(), repository.TemplateFilters{})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	data, err := GenerateTemplatesExport(items)
	if err != nil {
		h.logger.Error("template export failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="task_templates.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
