package internal

import (
	"net/http"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/upsidelab/physionet-build/internal/handler"
	"github.com/upsidelab/physionet-build/internal/middleware"
)

const apiPrefix = "/v1"

type Backend struct {
	R *gin.Engine
}

func Register(conf *handler.RegisterConfig) *Backend {
	s := new(Backend)
	s.R = gin.Default()

	// Kubernetes health check
	s.R.GET("/v1/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "ok",
		})
	})

	// Enable CORS for the local frontend in debug mode
	if gin.Mode() == gin.DebugMode {
		fe := os.Getenv("ENVIRONMENT_FE_PORT")
		if fe != "" {
			url := "http://localhost:" + fe
			corsConf := cors.DefaultConfig()
			corsConf.AllowOrigins = []string{url}
			corsConf.AllowHeaders = append(corsConf.AllowHeaders, "Authorization")
			s.R.Use(cors.New(corsConf))
		}
	}

	managers := registerManagers(conf)

	publicRouter := s.R.Group(apiPrefix)
	protectedRouter := s.R.Group(apiPrefix)
	protectedRouter.Use(middleware.AuthProtected())
	adminRouter := s.R.Group(apiPrefix + "/admin")
	adminRouter.Use(middleware.AuthProtected(), middleware.AuthAdmin())

	for _, mgr := range managers {
		mgr.RegisterPublic(publicRouter)
		mgr.RegisterProtected(protectedRouter)
		mgr.RegisterAdmin(adminRouter)
	}

	s.R.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return s
}
