package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hireloop/hireloop/internal/cache"
	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/internal/handler"
	"github.com/hireloop/hireloop/internal/metrics"
	"github.com/hireloop/hireloop/internal/middleware"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/repository"
	"github.com/hireloop/hireloop/internal/service"
)

// services bundles everything the router serves.
type services struct {
	billing      *service.BillingService
	tenancy      *service.TenancyService
	jobs         *service.JobService
	applications *service.ApplicationService
	candidates   *service.CandidateService
	tickets      *service.TicketService
	calendar     *service.CalendarService
	webhooks     handler.WebhookStore
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	svcs services,
	repo *repository.Repository,
	cacheClient *cache.Cache,
	recorder *metrics.InMemoryRecorder,
	views handler.ViewPublisher,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	h := handler.New()
	healthHandler := handler.NewHealthHandler(
		handler.Dependency{Name: "postgres", Pinger: repo},
		handler.Dependency{Name: "redis", Pinger: cacheClient},
	)
	metricsHandler := handler.NewMetricsHandler(recorder)
	tenancyHandler := handler.NewTenancyHandler(svcs.tenancy, logger)
	apiKeyHandler := handler.NewAPIKeyHandler(logger, svcs.tenancy)
	careersHandler := handler.NewCareersHandler(svcs.tenancy, svcs.jobs, svcs.applications, logger).TrackViews(views)
	jobHandler := handler.NewJobHandler(svcs.jobs, logger)
	applicationHandler := handler.NewApplicationHandler(svcs.applications, logger)
	candidateHandler := handler.NewCandidateHandler(svcs.candidates, svcs.applications, logger)
	billingHandler := handler.NewBillingHandler(svcs.billing, logger)
	paymentHandler := handler.NewPaymentWebhookHandler(svcs.billing, cfg.PaymentWebhookSecret, cfg.PaymentSignatureWindow, recorder, logger)
	ticketHandler := handler.NewTicketHandler(svcs.tickets, logger)
	calendarHandler := handler.NewCalendarHandler(svcs.calendar, logger)
	webhookHandler := handler.NewWebhookHandler(svcs.webhooks, logger, cfg.WebhookAllowInsecure)
	adminHandler := handler.NewAdminHandler(svcs.billing, svcs.tickets, svcs.tenancy, logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.SecureHeaders(!cfg.IsDevelopment()))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(middleware.BodyLimit(cfg.MaxRequestBodySize))

	// Health and metrics (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	// Root info endpoint
	r.Get("/", h.Index)

	authCfg := middleware.AuthConfig{
		Logger: logger,
		Keys:   repo,
		Cache:  cacheClient,
	}
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:        logger,
		Limiter:       cacheClient,
		APIEnabled:    cfg.RateLimitAPIEnabled,
		PublicEnabled: cfg.RateLimitPublicEnabled,
		PublicRPS:     cfg.RateLimitPublicRPS,
		PublicBurst:   cfg.RateLimitPublicBurst,
	}
	read, write, admin := middleware.RequireRead, middleware.RequireWrite, middleware.RequireAdmin

	// Payment processor callbacks, authenticated by signature.
	r.With(middleware.RateLimitIP(rateLimitCfg, "payments")).Post("/webhooks/payments", paymentHandler.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints, rate limited per IP.
		r.With(middleware.RateLimitIP(rateLimitCfg, "signup")).Post("/signup", tenancyHandler.Signup)
		r.With(middleware.RateLimitIP(rateLimitCfg, "invite")).Post("/invitations/accept", tenancyHandler.AcceptInvite)
		r.Route("/careers/{slug}", func(r chi.Router) {
			r.Use(middleware.RateLimitIP(rateLimitCfg, "careers"))
			r.Get("/jobs", careersHandler.ListJobs)
			r.Get("/jobs/{jobID}", careersHandler.GetJob)
			r.Post("/jobs/{jobID}/apply", careersHandler.Apply)
		})

		// Tenant endpoints.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))
			r.Use(middleware.RateLimitAPI(rateLimitCfg))
			r.Use(middleware.RequireTenant)

			// Support and billing stay reachable in every subscription
			// status so a lapsed tenant can get help and pay.
			r.Route("/tickets", func(r chi.Router) {
				r.With(read).Get("/", ticketHandler.List)
				r.With(write).Post("/", ticketHandler.Open)
				r.With(read).Get("/{id}", ticketHandler.Get)
				r.With(write).Post("/{id}/messages", ticketHandler.Reply)
				r.With(write).Post("/{id}/close", ticketHandler.Close)
			})
			r.Route("/billing", func(r chi.Router) {
				r.With(read).Get("/subscription", billingHandler.Subscription)
				r.With(read).Get("/plans", billingHandler.Plans)
				r.With(read).Get("/history", billingHandler.History)
				r.With(admin).Post("/change-plan", billingHandler.ChangePlan)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAccess(logger, svcs.billing))

				r.With(read).Get("/company", tenancyHandler.GetCompany)
				r.With(admin).Patch("/company", tenancyHandler.UpdateCompany)
				r.With(read).Get("/me", tenancyHandler.GetMe)
				r.With(read).Patch("/me", tenancyHandler.UpdateMe)

				r.Route("/members", func(r chi.Router) {
					r.With(read).Get("/", tenancyHandler.ListMembers)
					r.With(admin).Put("/{userID}/role", tenancyHandler.ChangeRole)
					r.With(admin).Delete("/{userID}", tenancyHandler.RemoveMember)
				})
				r.With(admin).Post("/invitations", tenancyHandler.Invite)

				r.Route("/api-keys", func(r chi.Router) {
					r.With(read).Get("/", apiKeyHandler.ListAPIKeys)
					r.With(write).Post("/", apiKeyHandler.CreateAPIKey)
					r.With(write).Delete("/{id}", apiKeyHandler.RevokeAPIKey)
					r.With(write).Post("/{id}/rotate", apiKeyHandler.RotateAPIKey)
				})

				r.Route("/jobs", func(r chi.Router) {
					r.With(read).Get("/", jobHandler.List)
					r.With(write).Post("/", jobHandler.Create)
					r.With(read).Get("/{id}", jobHandler.Get)
					r.With(write).Patch("/{id}", jobHandler.Update)
					r.With(write).Delete("/{id}", jobHandler.Archive)
					r.With(write).Post("/{id}/publish", jobHandler.Publish)
					r.With(write).Post("/{id}/close", jobHandler.Close)
					r.With(read).Get("/{id}/stats", jobHandler.Stats)
					r.With(read).Get("/{id}/applications", applicationHandler.ListByJob)
					r.With(write).Post("/{id}/applications", applicationHandler.Create)
				})

				r.Route("/applications/{id}", func(r chi.Router) {
					r.With(read).Get("/", applicationHandler.Get)
					r.With(write).Post("/stage", applicationHandler.MoveStage)
					r.With(read).Get("/notes", applicationHandler.ListNotes)
					r.With(write).Post("/notes", applicationHandler.AddNote)
					r.With(write, middleware.RequireFeature(model.FeatureAIScoring)).Post("/rescore", applicationHandler.Rescore)
				})

				r.Route("/candidates", func(r chi.Router) {
					r.With(read).Get("/", candidateHandler.List)
					r.With(read).Get("/{id}", candidateHandler.Get)
					r.With(read).Get("/{id}/applications", candidateHandler.Applications)
					r.With(write).Patch("/{id}", candidateHandler.Update)
					r.With(admin).Delete("/{id}", candidateHandler.Delete)
				})
				r.With(read, middleware.RequireFeature(model.FeatureTalentSearch)).Get("/talent", candidateHandler.Search)

				r.Route("/webhooks", func(r chi.Router) {
					r.Use(middleware.RequireWebhook)
					r.Use(middleware.RequireFeature(model.FeatureAPIAccess))
					r.Get("/", webhookHandler.List)
					r.Post("/", webhookHandler.Create)
					r.Get("/event-types", webhookHandler.EventTypes)
					r.Get("/{id}", webhookHandler.Get)
					r.Patch("/{id}", webhookHandler.Update)
					r.Delete("/{id}", webhookHandler.Delete)
					r.Post("/{id}/rotate-secret", webhookHandler.RotateSecret)
					r.Get("/{id}/deliveries", webhookHandler.ListDeliveries)
					r.Post("/{id}/deliveries/{deliveryId}/retry", webhookHandler.RetryDelivery)
				})

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireFeature(model.FeatureCalendar))
					r.Route("/calendar/events", func(r chi.Router) {
						r.With(read).Get("/", calendarHandler.ListEvents)
						r.With(write).Post("/", calendarHandler.CreateEvent)
						r.With(read).Get("/{id}", calendarHandler.GetEvent)
						r.With(write).Patch("/{id}", calendarHandler.UpdateEvent)
						r.With(write).Delete("/{id}", calendarHandler.DeleteEvent)
					})
					r.Route("/tasks", func(r chi.Router) {
						r.With(read).Get("/", calendarHandler.ListTasks)
						r.With(write).Post("/", calendarHandler.CreateTask)
						r.With(read).Get("/{id}", calendarHandler.GetTask)
						r.With(write).Patch("/{id}", calendarHandler.UpdateTask)
						r.With(write).Put("/{id}/completed", calendarHandler.CompleteTask)
						r.With(write).Delete("/{id}", calendarHandler.DeleteTask)
					})
				})
			})
		})

		// Platform staff endpoints.
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))
			r.Use(middleware.RateLimitAPI(rateLimitCfg))
			r.Use(middleware.RequirePlatform)

			r.Get("/stats", adminHandler.Stats)
			r.Post("/sweep", adminHandler.Sweep)
			r.Post("/platform-keys", adminHandler.CreatePlatformKey)

			r.Get("/subscriptions", adminHandler.ListSubscriptions)
			r.Get("/companies/{companyID}/subscription", adminHandler.GetSubscription)
			r.Post("/companies/{companyID}/subscription/actions", adminHandler.ApplyAction)

			r.Get("/plans", adminHandler.ListPlans)
			r.Post("/plans", adminHandler.CreatePlan)
			r.Delete("/plans/{id}", adminHandler.DeactivatePlan)

			r.Get("/tickets", adminHandler.ListTickets)
			r.Get("/tickets/{id}", adminHandler.GetTicket)
			r.Post("/tickets/{id}/messages", adminHandler.ReplyTicket)
			r.Put("/tickets/{id}/status", adminHandler.SetTicketStatus)
			r.Put("/tickets/{id}/assignee", adminHandler.AssignTicket)
			r.Put("/tickets/{id}/priority", adminHandler.SetTicketPriority)
		})
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
