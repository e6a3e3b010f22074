package profile

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func fakeAuth(c *fiber.Ctx) error {
	c.Locals("user_id", "user-1")
	return c.Next()
}

func TestProfileHandlers(t *testing.T) {
	mock := newMock(t)
	app := fiber.New()
	RegisterRoutes(app.Group("/api/profile"), NewService(mock, nil, 70), fakeAuth)

	mock.ExpectQuery(`FROM user_profiles`).WithArgs("user-1").WillReturnError(pgx.ErrNoRows)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get status: %v", err)
	}
	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil || p.WeightKg != 70 {
		t.Fatalf("unexpected profile: %+v %v", p, err)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/profile", bytes.NewReader([]byte(`{"weight":-1}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request")
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/api/profile/shoes/nope", nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found")
	}

	mock.ExpectQuery(`FROM shoes WHERE user_id`).WithArgs("user-1").WillReturnRows(pgxmock.NewRows(shoeCols))
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/profile/shoes", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("shoes status")
	}
}
