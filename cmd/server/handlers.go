package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"schema-graph/internal/adapter"
	"schema-graph/internal/builder"
	"schema-graph/internal/catalog"
	"schema-graph/internal/graph"
	"schema-graph/internal/renderer"
	"schema-graph/internal/semantics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// openFunc 按类型打开数据源连接
type openFunc func(ctx context.Context, ds catalog.DataSource) (adapter.DBAdapter, error)

// api HTTP 处理器
type api struct {
	catalog *catalog.Service
	builder *builder.Builder
	model   *semantics.Model
	opts    graph.Options
	open    openFunc
	logger  logrus.FieldLogger
}

// newRouter 注册全部路由
func newRouter(a *api) http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(a.logger),
		middleware.Recoverer,
	)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sources", func(r chi.Router) {
			r.Get("/", a.listSources)
			r.Post("/", a.connectSource)
			r.Post("/{id}/scan", a.scanSource)
			r.Get("/{id}/datasets", a.listDatasets)
		})
		r.Get("/datasets/{datasetID}/tables", a.listTables)
		r.Get("/tables/{tableID}/columns", a.listColumns)
		r.Get("/semantic/entities", a.listEntities)

		r.Route("/graph", func(r chi.Router) {
			r.Post("/build-from-dataset", a.buildFromDataset)
			r.Get("/detect-relationships/{datasetID}", a.detectRelationships)
			r.Get("/full", a.fullGraph)
			r.Get("/entity/{name}", a.entityGraph)
		})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// requestLogger 用 logrus 记录每个请求
func requestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("request")
		})
	}
}

// errorResponse 错误响应
type errorResponse struct {
	Error     string `json:"error"`
	Condition string `json:"condition"`
}

// writeError 按错误类型映射状态码：找不到和没有连接都是 404，其余 500
func (a *api) writeError(w http.ResponseWriter, err error) {
	status, condition := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		status, condition = http.StatusNotFound, "not_found"
	case errors.Is(err, catalog.ErrNoConnector):
		status, condition = http.StatusNotFound, "no_connector"
	}
	if status == http.StatusInternalServerError {
		a.logger.WithError(err).Error("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Condition: condition})
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Condition: "bad_request"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// graphPayload 图的 JSON 输出
func graphPayload(g *graph.Graph) map[string]interface{} {
	return map[string]interface{}{
		"nodes": g.Nodes(),
		"edges": g.Edges(),
		"stats": g.Stats(),
	}
}

func (a *api) listSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.catalog.Snapshot().ListDatasources())
}

// connectRequest POST /api/sources 请求体；DataSource 的 DSN 不参与 JSON 输出，这里单独接收
type connectRequest struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	DSN         string `json:"dsn"`
	Schema      string `json:"schema"`
	Description string `json:"description"`
}

// connectSource 注册并连接新的数据源
func (a *api) connectSource(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, errors.Wrap(err, "decode datasource"))
		return
	}
	ds := catalog.DataSource(req)
	if ds.ID == "" {
		badRequest(w, errors.New("id is required"))
		return
	}
	conn, err := a.open(r.Context(), ds)
	if err != nil {
		if errors.Is(err, adapter.ErrUnsupportedType) {
			badRequest(w, err)
			return
		}
		a.writeError(w, err)
		return
	}
	if err := a.catalog.Register(r.Context(), ds, conn); err != nil {
		conn.Close()
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "connected", "id": ds.ID})
}

func (a *api) scanSource(w http.ResponseWriter, r *http.Request) {
	stats, err := a.catalog.Scan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "stats": stats})
}

func (a *api) listDatasets(w http.ResponseWriter, r *http.Request) {
	snap := a.catalog.Snapshot()
	id := chi.URLParam(r, "id")
	if _, err := snap.Datasource(id); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.ListDatasets(id))
}

func (a *api) listTables(w http.ResponseWriter, r *http.Request) {
	snap := a.catalog.Snapshot()
	id := chi.URLParam(r, "datasetID")
	if _, err := snap.Dataset(id); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.ListTables(id))
}

func (a *api) listColumns(w http.ResponseWriter, r *http.Request) {
	snap := a.catalog.Snapshot()
	id := chi.URLParam(r, "tableID")
	if _, err := snap.Table(id); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.ListColumns(id))
}

func (a *api) listEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.model.Entities())
}

// buildRequest POST /api/graph/build-from-dataset 请求体
type buildRequest struct {
	DatasetID string `json:"dataset_id"`
}

// buildFromDataset 构建数据集关系图；format=markdown / mermaid 时返回渲染结果
func (a *api) buildFromDataset(w http.ResponseWriter, r *http.Request) {
	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, errors.Wrap(err, "decode request"))
		return
	}
	if req.DatasetID == "" {
		badRequest(w, errors.New("dataset_id is required"))
		return
	}

	g, err := a.builder.BuildDataGraph(r.Context(), req.DatasetID)
	if err != nil {
		a.writeError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(renderer.NewMarkdownRenderer().Render(g)))
		return
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(renderer.NewMermaidRenderer().Render(g)))
		return
	}

	payload := graphPayload(g)
	payload["status"] = "success"
	payload["dataset_id"] = req.DatasetID
	writeJSON(w, http.StatusOK, payload)
}

func (a *api) detectRelationships(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "datasetID")
	rels, err := a.builder.DetectRelationships(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "success",
		"dataset_id":    id,
		"relationships": rels,
		"total_count":   len(rels),
	})
}

func (a *api) fullGraph(w http.ResponseWriter, r *http.Request) {
	g, err := a.builder.BuildPlatformGraph(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graphPayload(g))
}

// entityGraph 实体子图，depth 默认取配置
func (a *api) entityGraph(w http.ResponseWriter, r *http.Request) {
	depth := a.opts.DefaultPathDepth
	if v := r.URL.Query().Get("depth"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d < 0 {
			badRequest(w, errors.Errorf("invalid depth %q", v))
			return
		}
		depth = d
	}

	name := chi.URLParam(r, "name")
	g, err := a.builder.BuildEntityGraph(r.Context(), name, depth)
	if err != nil {
		a.writeError(w, err)
		return
	}
	payload := graphPayload(g)
	payload["entity"] = name
	writeJSON(w, http.StatusOK, payload)
}
