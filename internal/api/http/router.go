// Copyright 2026 miludeerforest
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/route"

	"github.com/miludeerforest/abp-studio-sub001/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
}

// NewRouter 创建 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// Build 创建 Hertz 服务并挂载路由；opts 透传给 server.New（如链路追踪）
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	hertzOpts := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(hertzOpts...)
	r.SetupRoutes(h)
	return h
}

// SetupRoutes 挂载路由
func (r *Router) SetupRoutes(h *server.Hertz) {
	h.Use(r.middleware.CORS())
	h.Use(r.middleware.AccessLog())

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	r.registerBatchRoutes(api.Group("/batches"))
	r.registerStoryRoutes(api.Group("/story"))

	res := api.Group("/results")
	res.GET("/batches", r.handler.ListBatchResults)
	res.GET("/stories", r.handler.ListStoryResults)

	system := api.Group("/system")
	system.GET("/metrics", r.handler.SystemMetrics)
}

func (r *Router) registerBatchRoutes(g *route.RouterGroup) {
	g.POST("", r.handler.CreateBatch)
	g.GET("/:id", r.handler.GetBatch)
	g.POST("/:id/start", r.handler.StartBatch)
	g.POST("/:id/pause", r.handler.PauseBatch)
	g.POST("/:id/resume", r.handler.ResumeBatch)
	g.POST("/:id/items/:itemID/retry", r.handler.RetryItem)
	g.GET("/:id/result", r.handler.GetBatchResult)
}

func (r *Router) registerStoryRoutes(g *route.RouterGroup) {
	g.POST("/generate", r.handler.GenerateStory)
	g.GET("/jobs/:id", r.handler.GetStoryJob)
	g.POST("/jobs/:id/stop", r.handler.StopStoryJob)
}
