package router

import "github.com/gin-gonic/gin"

// Module is one slice of the status API. Register mounts its routes on the
// /api group after the registry's shared middleware.
type Module interface {
	Register(rg *gin.RouterGroup)
}
