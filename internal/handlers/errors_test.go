package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"delivery-tracker/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"validation", &services.ValidationError{Message: "任务名称是必填项"}, http.StatusBadRequest, `{"error":"任务名称是必填项"}`},
		{"wrapped validation", fmt.Errorf("create: %w", &services.ValidationError{Message: "状态无效"}), http.StatusBadRequest, `{"error":"状态无效"}`},
		{"login", &services.LoginError{Message: "密码错误"}, http.StatusUnauthorized, `{"error":"密码错误"}`},
		{"disabled", &services.LoginError{Message: "账号已被禁用", Disabled: true}, http.StatusForbidden, `{"error":"账号已被禁用"}`},
		{"not found", services.ErrNotFound, http.StatusNotFound, `{"error":"record not found"}`},
		{"forbidden", services.ErrForbidden, http.StatusForbidden, `{"error":"forbidden"}`},
		{"no successor", services.ErrNoSuccessor, http.StatusConflict, `{"error":"` + services.ErrNoSuccessor.Error() + `"}`},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, `{"error":"internal server error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
			if tt.status == http.StatusInternalServerError {
				assert.Len(t, c.Errors, 1, "internal errors reach the request log")
			}
		})
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"})
	assert.NoError(t, err)
	assert.Len(t, ids, 1)

	_, err = parseIDs([]string{"nope"})
	var ve *services.ValidationError
	assert.ErrorAs(t, err, &ve)

	id, err := parseOptionalID(nil)
	assert.NoError(t, err)
	assert.Nil(t, id)
}
