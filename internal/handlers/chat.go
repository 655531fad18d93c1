package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"mailmind/internal/classifier"
	apperrors "mailmind/internal/errors"
	"mailmind/internal/models"
)

// Assistant is the orchestration surface the HTTP layer calls.
// *orchestrator.Orchestrator satisfies it.
type Assistant interface {
	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
	FetchImportant(ctx context.Context, userID string, keywords []string, timeRange classifier.TimeRange, pageToken string) (*models.ImportantEmailsResponse, error)
}

// ChatHandler handles one conversation turn with the assistant.
func ChatHandler(assistant Assistant) echo.HandlerFunc {
	return func(c echo.Context) error {
		if assistant == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ChatResponse{
				Error: "Assistant unavailable: no database configured",
			})
		}

		var req models.ChatRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ChatResponse{
				Error: "Invalid request body",
			})
		}

		resp, err := assistant.Chat(c.Request().Context(), req)
		if err != nil {
			kind := apperrors.KindOf(err)
			return c.JSON(kind.HTTPStatus(), models.ChatResponse{
				Error: err.Error(),
			})
		}
		return c.JSON(http.StatusOK, resp)
	}
}
