package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/JakeFAU/fleetwatch/internal/notify"
)

// ExampleServer shows adding and listing notifications over HTTP.
func ExampleServer() {
	store := notify.NewStore(notify.Options{})
	server := NewServer(Options{Store: store})

	body := `{"title":"Disk Space Warning","message":"Disk usage on storage-01 at 85%","server":"storage-01","severity":"warning","category":"storage"}`
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/notifications", strings.NewReader(body)))
	fmt.Println(rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/notifications/summary", nil))
	fmt.Print(rec.Body.String())
	// Output:
	// 201
	// {"total":1,"unread":1,"critical":0,"warning":1,"info":0,"success":0}
}
