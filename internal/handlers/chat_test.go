package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailmind/internal/classifier"
	apperrors "mailmind/internal/errors"
	"mailmind/internal/models"
)

type stubAssistant struct {
	chatResp      *models.ChatResponse
	chatErr       error
	importantResp *models.ImportantEmailsResponse
	importantErr  error
	lastTimeRange classifier.TimeRange
	lastKeywords  []string
}

func (s *stubAssistant) Chat(_ context.Context, _ models.ChatRequest) (*models.ChatResponse, error) {
	return s.chatResp, s.chatErr
}

func (s *stubAssistant) FetchImportant(_ context.Context, _ string, keywords []string, timeRange classifier.TimeRange, _ string) (*models.ImportantEmailsResponse, error) {
	s.lastTimeRange = timeRange
	s.lastKeywords = keywords
	return s.importantResp, s.importantErr
}

func postChat(t *testing.T, assistant Assistant, body string) (*httptest.ResponseRecorder, models.ChatResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, ChatHandler(assistant)(c))

	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestChatHandlerSuccess(t *testing.T) {
	assistant := &stubAssistant{chatResp: &models.ChatResponse{
		Response:  "You have 3 unread emails.",
		ModelUsed: "gpt-4o",
	}}

	rec, resp := postChat(t, assistant, `{"user_id": "u1", "message": "how many unread?"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "You have 3 unread emails.", resp.Response)
	assert.Equal(t, "gpt-4o", resp.ModelUsed)
}

func TestChatHandlerInvalidBody(t *testing.T) {
	rec, resp := postChat(t, &stubAssistant{}, `{"user_id": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, resp.Error)
}

func TestChatHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "missing parameter", err: apperrors.New(apperrors.KindMissingParameter, "user_id is required"), wantStatus: http.StatusBadRequest},
		{name: "invalid filter", err: apperrors.New(apperrors.KindInvalidFilter, "unsupported filter"), wantStatus: http.StatusBadRequest},
		{name: "reauth required", err: apperrors.New(apperrors.KindReauthRequired, "token revoked"), wantStatus: http.StatusUnauthorized},
		{name: "transient provider", err: apperrors.New(apperrors.KindTransientProvider, "upstream 502"), wantStatus: http.StatusBadGateway},
		{name: "all models exhausted", err: apperrors.New(apperrors.KindAllModelsExhausted, "chain failed"), wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := postChat(t, &stubAssistant{chatErr: tt.err}, `{"user_id": "u1", "message": "hi"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestImportantEmailsHandler(t *testing.T) {
	assistant := &stubAssistant{importantResp: &models.ImportantEmailsResponse{
		Messages: []models.ScoredMessage{
			{Message: models.Message{ID: "m1", Subject: "Urgent"}, Score: 91, IsImportant: true},
		},
	}}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/emails/important?user_id=u1&time_range=weekly", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, ImportantEmailsHandler(assistant)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, classifier.RangeWeekly, assistant.lastTimeRange)

	var resp models.ImportantEmailsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "m1", resp.Messages[0].ID)
}

func TestImportantEmailsHandlerPassesCursorAndKeywords(t *testing.T) {
	assistant := &stubAssistant{importantResp: &models.ImportantEmailsResponse{
		NextPageToken: "cursor-77",
	}}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/emails/important?user_id=u1&keywords=invoice,%20deadline", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, ImportantEmailsHandler(assistant)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"invoice", "deadline"}, assistant.lastKeywords)

	var resp models.ImportantEmailsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cursor-77", resp.NextPageToken)
}

func TestImportantEmailsHandlerDefaultsToDaily(t *testing.T) {
	assistant := &stubAssistant{importantResp: &models.ImportantEmailsResponse{}}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/emails/important?user_id=u1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, ImportantEmailsHandler(assistant)(c))
	assert.Equal(t, classifier.RangeDaily, assistant.lastTimeRange)
}

func TestImportantEmailsHandlerInvalidRange(t *testing.T) {
	assistant := &stubAssistant{importantErr: apperrors.New(apperrors.KindInvalidTimeRange, "unsupported time range")}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/emails/important?user_id=u1&time_range=hourly", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, ImportantEmailsHandler(assistant)(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
