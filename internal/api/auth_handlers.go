package api

import (
	"net/http"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/employee"
)

func loginHandler(svc *employee.Service, tokens *auth.Issuer, secure bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		e, err := svc.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			handleError(w, r, err)
			return
		}

		token, expires, err := tokens.MakeToken(e.ID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     AuthCookie,
			Value:    token,
			Path:     "/",
			Expires:  expires,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteStrictMode,
		})
		writeJSON(w, http.StatusCreated, TokenResponse{Token: token})
	}
}

func logoutHandler(secure bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     AuthCookie,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteStrictMode,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

func meHandler(svc *employee.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.Get(r.Context(), CallerID(r.Context()))
		if err != nil {
			// token outlived its employee
			handleError(w, r, employee.ErrUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, toEmployeeResponse(*e, locationFrom(r.Context())))
	}
}
