package middleware

import (
	"net/http"

	apperrors "github.com/familycare/checkin-dispatch/internal/errors"
	"github.com/familycare/checkin-dispatch/internal/httputil"
)

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// writeStatusError writes appErr with a status that differs from its code's default mapping.
func writeStatusError(w http.ResponseWriter, status int, appErr *apperrors.AppError) {
	httputil.WriteJSON(w, status, httputil.ErrorResponse{
		Error: appErr.Message,
		Code:  appErr.Code,
	})
}
