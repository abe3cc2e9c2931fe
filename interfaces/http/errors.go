package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"multipost/domain/dto"
	"multipost/domain/model"
	"multipost/domain/repository"
	"multipost/usecase"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrUnknownPlatform), errors.Is(err, repository.ErrCredentialNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrRequestExists), errors.Is(err, repository.ErrVersionConflict):
		return http.StatusConflict
	}
	var pe *model.PublishError
	if !errors.As(err, &pe) {
		return http.StatusInternalServerError
	}
	switch pe.Kind {
	case model.ErrorKindValidation:
		return http.StatusBadRequest
	case model.ErrorKindAuth:
		return http.StatusUnauthorized
	case model.ErrorKindTimeout:
		return http.StatusGatewayTimeout
	case model.ErrorKindTransientNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func abort(ctx *gin.Context, status int, message string) {
	ctx.AbortWithStatusJSON(status, dto.Res{ResponseCode: strconv.Itoa(status), ResponseMessage: message})
}

func abortErr(ctx *gin.Context, err error) {
	abort(ctx, statusFor(err), err.Error())
}
