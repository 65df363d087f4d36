package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// bindError answers a request whose body failed to bind. Validation failures
// name the offending fields; anything else is a malformed body.
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Datos inválidos", "campos": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Cuerpo de la solicitud inválido"})
}

// internalError logs err through gin and answers 500 with msg.
func internalError(c *gin.Context, err error, msg string) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
