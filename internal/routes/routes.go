// Package routes wires repositories, services and handlers into the HTTP router.
package routes

import (
	"fleetops/internal/auth"
	"fleetops/internal/config"
	"fleetops/internal/handler"
	"fleetops/internal/mailer"
	"fleetops/internal/metrics"
	"fleetops/internal/middleware"
	"fleetops/internal/otp"
	"fleetops/internal/pdf"
	"fleetops/internal/repository"
	"fleetops/internal/retry"
	"fleetops/internal/service"
	"fleetops/internal/storage"
	"fleetops/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// Infra is everything the services are built on.
type Infra struct {
	Config   config.Config
	DB       *gorm.DB
	Files    storage.Backend
	OTP      otp.Store
	Renderer pdf.Renderer
	// Mailer overrides the SMTP mailer backed by the stored email configurations.
	Mailer   mailer.Mailer
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Hub      *websocket.Hub
}

// Services holds the wired business layer.
type Services struct {
	Tokens           *auth.TokenManager
	Authz            service.AuthorizationService
	Auth             service.AuthService
	Roles            service.RoleService
	Users            service.UserService
	Riders           service.RiderService
	Documents        service.DocumentService
	Acknowledgements service.AcknowledgementService
	EmailConfigs     service.EmailConfigService
	Audit            service.AuditService
	Statistics       service.StatisticsService
}

// Policy converts the outbound settings into a retry policy.
func Policy(c config.Outbound) retry.Policy {
	return retry.Policy{Timeout: c.Timeout, Retries: c.Retries, InitialBackoff: c.InitialBackoff}
}

// NewServices builds repositories and services (Repository -> Service).
func NewServices(in Infra) *Services {
	db := in.DB
	m := in.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	var events service.Publisher
	if in.Hub != nil {
		events = in.Hub
	}

	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	riderRepo := repository.NewRiderRepository(db)
	codeRepo := repository.NewRiderCodeRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	ackRepo := repository.NewAcknowledgementRepository(db)
	emailRepo := repository.NewEmailConfigRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	statsRepo := repository.NewStatisticsRepository(db)

	emailConfigs := service.NewEmailConfigService(emailRepo, auditRepo, txManager, nil)
	mail := in.Mailer
	if mail == nil {
		mail = mailer.NewSMTPMailer(emailConfigs, mailer.FromConfig(in.Config.Mail), Policy(in.Config.Outbound))
	}
	if tester, ok := mail.(service.MailTester); ok {
		emailConfigs.SetTester(tester)
	}

	tokens := auth.NewTokenManager(in.Config.JWT.Secret, in.Config.JWT.AccessTTL)
	authz := service.NewAuthorizationService(userRepo, roleRepo, m)
	acks := service.NewAcknowledgementService(service.AcknowledgementDeps{
		Acks:      ackRepo,
		Riders:    riderRepo,
		Users:     userRepo,
		Audit:     auditRepo,
		Tx:        txManager,
		Renderer:  in.Renderer,
		Storage:   in.Files,
		URLTTL:    in.Config.Storage.SignedURLTTL,
		Publisher: events,
	})

	return &Services{
		Tokens: tokens,
		Authz:  authz,
		Auth: service.NewAuthService(service.AuthDeps{
			Users:      userRepo,
			Roles:      roleRepo,
			Audit:      auditRepo,
			Tx:         txManager,
			Authz:      authz,
			Tokens:     tokens,
			RefreshTTL: in.Config.JWT.RefreshTTL,
			OTP:        in.OTP,
			OTPTTL:     in.Config.OTP.TTL,
			Mailer:     mail,
			Metrics:    m,
		}),
		Roles: service.NewRoleService(roleRepo, auditRepo, txManager),
		Users: service.NewUserService(userRepo, roleRepo, auditRepo, txManager),
		Riders: service.NewRiderService(service.RiderDeps{
			Riders:          riderRepo,
			Codes:           codeRepo,
			Users:           userRepo,
			Audit:           auditRepo,
			Tx:              txManager,
			Acknowledgement: acks,
			Mailer:          mail,
			Metrics:         m,
			Publisher:       events,
		}),
		Documents:        service.NewDocumentService(docRepo, riderRepo, auditRepo, txManager, in.Files, in.Config.Storage.SignedURLTTL, events),
		Acknowledgements: acks,
		EmailConfigs:     emailConfigs,
		Audit:            service.NewAuditService(auditRepo),
		Statistics:       service.NewStatisticsService(statsRepo),
	}
}

// NewRouter registers middleware and every handler (Service -> Handler).
func NewRouter(in Infra, s *Services) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger("/health", "/metrics"))
	if in.Metrics != nil {
		router.Use(in.Metrics.GinMiddleware())
	}

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = in.Config.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	if len(corsConfig.AllowOrigins) > 0 {
		router.Use(cors.New(corsConfig))
	}

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if in.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(in.Gatherer, promhttp.HandlerOpts{})))
	}

	authn := middleware.NewAuthenticator(s.Tokens, s.Authz, in.Config.Server.Mode == gin.ReleaseMode, in.Config.JWT.RefreshTTL)
	local, _ := storage.Local(in.Files)

	root := router.Group("")
	handler.NewSystemHandler(in.DB, local, in.Hub, s.Tokens, s.Authz).RegisterRoutes(root)
	handler.NewAuthHandler(s.Auth, authn).RegisterRoutes(root)
	handler.NewRoleHandler(s.Roles, authn).RegisterRoutes(root)
	handler.NewUserHandler(s.Users, authn).RegisterRoutes(root)
	handler.NewRiderHandler(s.Riders, authn).RegisterRoutes(root)
	handler.NewDocumentHandler(s.Documents, authn).RegisterRoutes(root)
	handler.NewAcknowledgementHandler(s.Acknowledgements, authn).RegisterRoutes(root)
	handler.NewEmailConfigHandler(s.EmailConfigs, authn).RegisterRoutes(root)
	handler.NewAuditHandler(s.Audit, authn).RegisterRoutes(root)
	handler.NewStatisticsHandler(s.Statistics, authn).RegisterRoutes(root)

	return router
}
