package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/verone/backoffice/internal/logger"
)

type RespondErrorFunc func(w http.ResponseWriter, status int, message string, errors ...[]string)

type paramKey string

func capitalizeFirstLetter(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(string(s[0])) + s[1:]
}

// notFoundMessages maps path params to the 404 message returned for malformed ids.
var notFoundMessages = map[string]string{
	"ruleID":    "Matching rule not found",
	"invoiceID": "Invoice not found",
	"orderID":   "Sales order not found",
}

// ValidatePathUUIDs parses the named path params as UUIDs and stores them in the
// request context. A malformed id is answered as not found.
func ValidatePathUUIDs(respondError RespondErrorFunc, params ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, param := range params {
				paramValue := r.PathValue(param)
				if paramValue == "" {
					logger.L.Debug("path param is empty", "param", param, "path", r.URL.Path)
					respondError(w, http.StatusBadRequest, capitalizeFirstLetter(fmt.Sprintf("%s is required", param)))
					return
				}

				parsedUUID, err := uuid.Parse(paramValue)
				if err != nil {
					logger.L.Debug("path param is not a uuid", "param", param, "value", paramValue)
					if msg, ok := notFoundMessages[param]; ok {
						respondError(w, http.StatusNotFound, msg)
						return
					}
					respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s format", param))
					return
				}
				ctx = context.WithValue(ctx, paramKey(param), parsedUUID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PathUUID returns a param stored by ValidatePathUUIDs.
func PathUUID(ctx context.Context, param string) (uuid.UUID, bool) {
	id, ok := ctx.Value(paramKey(param)).(uuid.UUID)
	return id, ok
}
