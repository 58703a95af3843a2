// Package api wires the REST surface: echo for transport, huma for typed
// operations and OpenAPI.
package api

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/benasterisk/stemtube/internal/api/handlers"
	"github.com/benasterisk/stemtube/internal/api/middleware"
	"github.com/benasterisk/stemtube/internal/api/ws"
	"github.com/benasterisk/stemtube/internal/core/session"
	"github.com/benasterisk/stemtube/internal/database"
	"github.com/benasterisk/stemtube/internal/youtube"
)

type RouterConfig struct {
	JWTSecret string
	JWTExpiry time.Duration

	Users     *database.UserStore
	Settings  *database.SettingsStore
	Processed *database.ProcessedStore
	Sessions  *session.Registry
	YouTube   *youtube.Client
	Hub       *ws.Hub
	Tools     map[string]handlers.ToolChecker

	SettingDefaults handlers.SettingsDTO
}

func SetupRouter(e *echo.Echo, cfg RouterConfig) {
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
	e.GET("/ws", cfg.Hub.Handle)

	v1 := e.Group("/api/v1")
	config := huma.DefaultConfig("StemTube API", "1.0.0")
	config.Servers = []*huma.Server{{URL: "/api/v1"}}
	config.Info.Description = "YouTube downloads and music stem extraction"
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"BearerAuth": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "JWT Bearer token",
		},
	}

	api := humaecho.NewWithGroup(e, v1, config)

	authMw := middleware.Auth(cfg.JWTSecret)
	adminMw := middleware.AdminOnly()
	secured := []map[string][]string{{"BearerAuth": {}}}

	authHandler := handlers.NewAuthHandler(cfg.Users, cfg.JWTSecret, cfg.JWTExpiry)
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Login and get JWT token",
		Tags:        []string{"Auth"},
	}, authHandler.Login)

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Get current user info",
		Tags:        []string{"Auth"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, authHandler.Me)

	huma.Register(api, huma.Operation{
		OperationID: "change-password",
		Method:      http.MethodPost,
		Path:        "/auth/password",
		Summary:     "Change own password",
		Tags:        []string{"Auth"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, authHandler.ChangePassword)

	searchHandler := handlers.NewSearchHandler(cfg.YouTube)
	huma.Register(api, huma.Operation{
		OperationID: "search-videos",
		Method:      http.MethodGet,
		Path:        "/search",
		Summary:     "Search YouTube videos",
		Tags:        []string{"Search"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, searchHandler.Search)

	huma.Register(api, huma.Operation{
		OperationID: "search-suggestions",
		Method:      http.MethodGet,
		Path:        "/search/suggestions",
		Summary:     "Autocomplete search queries",
		Tags:        []string{"Search"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, searchHandler.Suggest)

	downloadsHandler := handlers.NewDownloadsHandler(cfg.Sessions, cfg.YouTube, cfg.Processed, cfg.Settings)
	huma.Register(api, huma.Operation{
		OperationID: "list-downloads",
		Method:      http.MethodGet,
		Path:        "/downloads",
		Summary:     "List downloads by status",
		Tags:        []string{"Downloads"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, downloadsHandler.List)

	huma.Register(api, huma.Operation{
		OperationID:   "add-download",
		Method:        http.MethodPost,
		Path:          "/downloads",
		Summary:       "Queue a download",
		Tags:          []string{"Downloads"},
		Security:      secured,
		Middlewares:   huma.Middlewares{authMw},
		DefaultStatus: http.StatusCreated,
	}, downloadsHandler.Add)

	huma.Register(api, huma.Operation{
		OperationID: "get-download",
		Method:      http.MethodGet,
		Path:        "/downloads/{id}",
		Summary:     "Get one download",
		Tags:        []string{"Downloads"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, downloadsHandler.Get)

	huma.Register(api, huma.Operation{
		OperationID: "cancel-download",
		Method:      http.MethodDelete,
		Path:        "/downloads/{id}",
		Summary:     "Cancel a download",
		Tags:        []string{"Downloads"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, downloadsHandler.Cancel)

	extractionsHandler := handlers.NewExtractionsHandler(cfg.Sessions)
	huma.Register(api, huma.Operation{
		OperationID: "list-extractions",
		Method:      http.MethodGet,
		Path:        "/extractions",
		Summary:     "List extractions by status",
		Tags:        []string{"Extractions"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, extractionsHandler.List)

	huma.Register(api, huma.Operation{
		OperationID:   "add-extraction",
		Method:        http.MethodPost,
		Path:          "/extractions",
		Summary:       "Queue a stem extraction",
		Tags:          []string{"Extractions"},
		Security:      secured,
		Middlewares:   huma.Middlewares{authMw},
		DefaultStatus: http.StatusCreated,
	}, extractionsHandler.Add)

	huma.Register(api, huma.Operation{
		OperationID: "get-extraction",
		Method:      http.MethodGet,
		Path:        "/extractions/{id}",
		Summary:     "Get one extraction",
		Tags:        []string{"Extractions"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, extractionsHandler.Get)

	huma.Register(api, huma.Operation{
		OperationID: "cancel-extraction",
		Method:      http.MethodDelete,
		Path:        "/extractions/{id}",
		Summary:     "Cancel an extraction",
		Tags:        []string{"Extractions"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, extractionsHandler.Cancel)

	systemHandler := handlers.NewSystemHandler(cfg.Tools)
	huma.Register(api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/models",
		Summary:     "List stem separation models",
		Tags:        []string{"System"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, systemHandler.Models)

	huma.Register(api, huma.Operation{
		OperationID: "check-tools",
		Method:      http.MethodGet,
		Path:        "/system/tools",
		Summary:     "Probe external tool availability",
		Tags:        []string{"System"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, systemHandler.Tools)

	settingsHandler := handlers.NewSettingsHandler(cfg.Settings, cfg.SettingDefaults)
	huma.Register(api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/settings",
		Summary:     "Get runtime settings",
		Tags:        []string{"Settings"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, settingsHandler.Get)

	huma.Register(api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPatch,
		Path:        "/settings",
		Summary:     "Update runtime settings",
		Tags:        []string{"Settings"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw, adminMw},
	}, settingsHandler.Update)

	adminHandler := handlers.NewAdminHandler(cfg.Users)
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/admin/users",
		Summary:     "List user accounts",
		Tags:        []string{"Admin"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw, adminMw},
	}, adminHandler.ListUsers)

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/admin/users",
		Summary:       "Create a user account",
		Tags:          []string{"Admin"},
		Security:      secured,
		Middlewares:   huma.Middlewares{authMw, adminMw},
		DefaultStatus: http.StatusCreated,
	}, adminHandler.CreateUser)

	huma.Register(api, huma.Operation{
		OperationID: "delete-user",
		Method:      http.MethodDelete,
		Path:        "/admin/users/{id}",
		Summary:     "Delete a user account",
		Tags:        []string{"Admin"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw, adminMw},
	}, adminHandler.DeleteUser)

	huma.Register(api, huma.Operation{
		OperationID: "set-user-admin",
		Method:      http.MethodPatch,
		Path:        "/admin/users/{id}",
		Summary:     "Grant or revoke administrator access",
		Tags:        []string{"Admin"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw, adminMw},
	}, adminHandler.SetAdmin)
}
