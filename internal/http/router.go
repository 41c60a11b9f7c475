package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterGenerationRoutes 生成引擎触发面（外部调度器调用）
func (r *Router) RegisterGenerationRoutes(g *GenerationHandler) {
	r.Handle("/tasks/api/v1/generation/run", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.RunSweep(w, req)
	})

	r.Handle("/tasks/api/v1/generation/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.Health(w, req)
	})
}

// RegisterTemplateRoutes 模板管理面
func (r *Router) RegisterTemplateRoutes(h *TemplatesHandler) {
	r.Handle("/admin/api/v1/templates", h.ServeHTTP)
	r.Handle("/admin/api/v1/templates/", h.ServeHTTP)
}
