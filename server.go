package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/xanderflood/pibattery/pkg/battery"
)

type InitializeRequest struct {
	Modules map[string]ModuleSpec `json:"modules"`
}
type InitializeResponse struct {
	NumModules int `json:"num_modules"`
}

type ActRequest struct {
	Module string          `json:"module" binding:"required"`
	Action string          `json:"action" binding:"required"`
	Config json.RawMessage `json:"config"`
}
type ActResponse struct {
	Result interface{} `json:"result"`
}

type ModulesResponse struct {
	Modules map[string]string `json:"modules"`
}

func buildRouter(mgr *ManagerAgent) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logrus.StandardLogger()))

	router.POST("/initialize", func(c *gin.Context) {
		var req InitializeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}

		if err := mgr.InitializeModules(req.Modules); err != nil {
			abort(c, initializeStatus(err), err)
			return
		}

		c.JSON(http.StatusOK, InitializeResponse{NumModules: len(mgr.Modules())})
	})

	router.POST("/act", func(c *gin.Context) {
		var req ActRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}

		result, err := mgr.Act(req.Module, req.Action, RawBinder(req.Config))
		if err != nil {
			abort(c, actStatus(err), err)
			return
		}

		c.JSON(http.StatusOK, ActResponse{Result: result})
	})

	router.GET("/modules", func(c *gin.Context) {
		c.JSON(http.StatusOK, ModulesResponse{Modules: mgr.Modules()})
	})

	return router
}

func initializeStatus(err error) int {
	var cfgErr *battery.ConfigurationError
	if errors.Is(err, ErrNoSuchSource) || errors.As(err, &cfgErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func actStatus(err error) int {
	switch {
	case errors.Is(err, ErrNoSuchModule):
		return http.StatusNotFound
	case errors.Is(err, ErrNoSuchAction):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, status int, err error) {
	logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"client":  c.ClientIP(),
		}).Debug("handled request")
	}
}
