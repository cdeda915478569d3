package handlers

import (
	"errors"
	"log"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"learnloop/models"
	"learnloop/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators adds the custom binding rules used by request structs.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v.RegisterValidation("classlevel", func(fl validator.FieldLevel) bool {
		return models.IsValidLevel(fl.Field().String())
	})
}

var statusByKind = map[services.ErrorKind]int{
	services.KindValidation:       http.StatusBadRequest,
	services.KindNotFound:         http.StatusNotFound,
	services.KindAlreadySubmitted: http.StatusBadRequest,
	services.KindUnauthorized:     http.StatusUnauthorized,
	services.KindServer:           http.StatusInternalServerError,
}

func respondError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	if kind == services.KindServer {
		log.Printf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(statusByKind[kind], gin.H{"message": services.MessageOf(err)})
}

// bindJSON decodes the body into req and writes a 400 on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "Validation failed", "fields": fields})
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
	return false
}

func currentUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Not authorized, no token"})
		return 0, false
	}
	return userID.(uint), true
}

// queryInt reads an optional integer query parameter; malformed values are
// treated as absent.
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
