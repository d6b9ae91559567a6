package handlers

import (
	"strconv"

	"github.com/gig-marketplace/backend/internal/apperrors"
	"github.com/gig-marketplace/backend/internal/http/dto"
	"github.com/gig-marketplace/backend/internal/middleware"
	"github.com/gig-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// respondError maps a service error to its HTTP status and body. Untyped
// errors become a 500 with the generic message.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	kind := apperrors.KindOf(err)
	meta := apperrors.MetadataFor(kind)
	resp := dto.ErrorResponse{Error: meta.PublicMessage, Code: string(kind), RequestID: middleware.GetRequestID(c)}
	if e := apperrors.As(err); e != nil && kind != apperrors.KindInternal {
		resp.Error = e.Message()
		if meta.DetailsAllowed {
			resp.Details = e.Details()
		}
	}

	if meta.HTTPStatus >= fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", resp.RequestID),
			zap.String("path", c.Path()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	return c.Status(meta.HTTPStatus).JSON(resp)
}

func actor(c *fiber.Ctx) services.Actor {
	return services.Actor{UserID: middleware.GetUserID(c), Role: middleware.GetRole(c)}
}

// pagination reads limit/offset with defaults, capping limit at 100.
func pagination(c *fiber.Ctx) (limit, offset int) {
	limit, offset = 20, 0
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > 100 {
		limit = 100
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
