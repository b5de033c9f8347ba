package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformhealth "github.com/anhduy-tech/lapxpert-inventory/platform/health/http"
	platformobservability "github.com/anhduy-tech/lapxpert-inventory/platform/observability"
)

// NewRouter создаёт и настраивает HTTP роутер Inventory Service.
// readiness - функция для проверки готовности сервиса (например, проверка БД).
// Если readiness возвращает false, health endpoint вернёт 503 Service Unavailable.
// logger используется для observability HTTP middleware (trace_id в логах).
func NewRouter(handler *Handler, readiness func() bool, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)

	// Observability: trace context + span на каждый запрос, logger с trace_id в контексте
	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("inventory", logger))
	}

	router.Route("/serials", func(r chi.Router) {
		r.Post("/", handler.CreateSerial)
		r.Post("/generate", handler.GenerateSerials)
		r.Get("/{id}", withID(handler.GetSerial))
		r.Patch("/{id}", withID(handler.UpdateSerial))
		r.Delete("/{id}", withID(handler.DeleteSerial))
		r.Post("/{id}/status", withID(handler.ChangeStatus))
		r.Get("/{id}/audit", withID(handler.GetAuditTrail))
	})

	router.Route("/variants/{variantID}", func(r chi.Router) {
		r.Get("/availability", withVariantID(handler.GetAvailability))
		r.Get("/serials", withVariantID(handler.GetVariantSerials))
	})

	router.Post("/availability/check", handler.CheckAvailability)

	router.Route("/reservations", func(r chi.Router) {
		r.Post("/quantity", handler.ReserveByQuantity)
		r.Post("/serials", handler.ReserveSerials)
		r.Post("/items", handler.ReserveItems)
		r.Post("/confirm-sale", handler.ConfirmSale)
		r.Post("/release", handler.Release)
		r.Post("/release-from-sold", handler.ReleaseFromSold)
		r.Post("/rebind", handler.Rebind)
		r.Post("/validate", handler.ValidateAssignment)
	})

	router.Get("/holds/{reference}", func(w http.ResponseWriter, r *http.Request) {
		handler.GetHold(w, r, chi.URLParam(r, "reference"))
	})

	// Health без middleware
	router.Get("/health", platformhealth.Handler(readiness))

	return router
}

// withID адаптирует обработчик с int64 параметром к chi маршруту {id}
func withID(fn func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return parseParam("id", fn)
}

// withVariantID адаптирует обработчик с int64 параметром к chi маршруту {variantID}
func withVariantID(fn func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return parseParam("variantID", fn)
}

func parseParam(name string, fn func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, name+" must be a positive integer", http.StatusBadRequest)
			return
		}
		fn(w, r, id)
	}
}
