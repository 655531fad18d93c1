package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"mailmind/internal/classifier"
	apperrors "mailmind/internal/errors"
	"mailmind/internal/models"
)

// ImportantEmailsHandler serves the ranked important-emails view.
// Query params: user_id (required), time_range (daily|weekly|monthly,
// default daily), keywords (comma-separated, joins the account's
// configured set), page_token.
func ImportantEmailsHandler(assistant Assistant) echo.HandlerFunc {
	return func(c echo.Context) error {
		if assistant == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ImportantEmailsResponse{
				Error: "Assistant unavailable: no database configured",
			})
		}

		userID := c.QueryParam("user_id")
		timeRange := classifier.TimeRange(c.QueryParam("time_range"))
		if timeRange == "" {
			timeRange = classifier.RangeDaily
		}
		keywords := splitKeywords(c.QueryParam("keywords"))

		resp, err := assistant.FetchImportant(c.Request().Context(), userID, keywords, timeRange, c.QueryParam("page_token"))
		if err != nil {
			kind := apperrors.KindOf(err)
			return c.JSON(kind.HTTPStatus(), models.ImportantEmailsResponse{
				Error: err.Error(),
			})
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// splitKeywords parses the comma-separated keywords query param.
func splitKeywords(raw string) []string {
	var keywords []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}
