// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/authgate/internal/platform/apperr"
	"github.com/taibuivan/authgate/internal/platform/ctxutil"
	"github.com/taibuivan/authgate/internal/platform/middleware"
	requestutil "github.com/taibuivan/authgate/internal/platform/request"
	"github.com/taibuivan/authgate/internal/platform/respond"
	"github.com/taibuivan/authgate/internal/platform/sec"
	"github.com/taibuivan/authgate/internal/platform/validate"
)

// # Definitions & Constructors

// SessionTokens signs and verifies session tokens. [*sec.TokenCodec] implements it.
type SessionTokens interface {
	Sign(identity sec.SessionIdentity) (string, error)
	Verify(token string) (*sec.SessionClaims, error)
}

// Handler implements the account HTTP endpoints.
//
// It is the boundary where domain errors become status codes: the service
// never writes a response.
type Handler struct {
	authService *Service
	tokens      SessionTokens
	cookie      *sec.SessionCookie
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service, tokens SessionTokens, cookie *sec.SessionCookie) *Handler {
	return &Handler{
		authService: service,
		tokens:      tokens,
		cookie:      cookie,
	}
}

// Routes returns a [chi.Router] configured with the account routes.
//
// # Endpoints
//   - POST /signup  : Creates an account and starts a session.
//   - POST /signin  : Verifies credentials and starts a session.
//   - POST /signout : Clears the session cookie.
//   - GET  /me      : Returns the current session identity.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/signup", handler.signup)
	router.Post("/signin", handler.signin)
	router.Post("/signout", handler.signout)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/me", handler.me)
	})

	return router
}

// # Request Payloads

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	Message string         `json:"message"`
	User    *PublicAccount `json:"user"`
}

type sessionResponse struct {
	User      sessionUser `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

type sessionUser struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Role  sec.Role `json:"role"`
}

/*
Signup creates an account and establishes a session.

POST /api/auth/signup

Response:
  - 201: {message, user} and the session cookie
  - 400: Validation failure or duplicate email
*/
func (handler *Handler) signup(writer http.ResponseWriter, request *http.Request) {
	var input signupRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldName, input.Name).
		MinLen(FieldName, input.Name, NameMinLength).
		MaxLen(FieldName, input.Name, NameMaxLength).
		Required(FieldEmail, input.Email).
		MaxLen(FieldEmail, input.Email, EmailMaxLength).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, PasswordMinLength).
		MaxLen(FieldPassword, input.Password, PasswordMaxLength).
		MaxBytes(FieldPassword, input.Password, sec.MaxPasswordBytes)

	if input.Role != "" {
		validator.OneOf(FieldRole, input.Role, string(sec.RoleAdmin), string(sec.RoleUser))
	}

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.authService.Signup(request.Context(), SignupInput{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
		Role:     sec.Role(input.Role),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.startSession(writer, account); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.JSON(writer, http.StatusCreated, accountResponse{
		Message: MessageSignedUp,
		User:    account,
	})
}

/*
Signin authenticates an account and establishes a session.

POST /api/auth/signin

Response:
  - 200: {message, user} and the session cookie
  - 400: Validation failure
  - 401: Invalid email or password
*/
func (handler *Handler) signin(writer http.ResponseWriter, request *http.Request) {
	var input signinRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.authService.SignIn(request.Context(), input.Email, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.startSession(writer, account); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.JSON(writer, http.StatusOK, accountResponse{
		Message: MessageSignedIn,
		User:    account,
	})
}

/*
Signout clears the session cookie.

POST /api/auth/signout

It never fails on a missing or invalid token; those cases are only logged.

Response:
  - 200: {message}
*/
func (handler *Handler) signout(writer http.ResponseWriter, request *http.Request) {
	logger := ctxutil.GetLogger(request.Context())

	token, found := handler.cookie.Get(request)
	handler.cookie.Clear(writer)

	switch {
	case !found:
		logger.InfoContext(request.Context(), "signout_without_session")
	default:
		claims, err := handler.tokens.Verify(token)
		if err != nil {
			logger.InfoContext(request.Context(), "signout_with_invalid_session")
			break
		}
		logger.InfoContext(request.Context(), "account_signed_out", slog.String("account_id", claims.AccountID))
	}

	respond.JSON(writer, http.StatusOK, map[string]string{
		FieldMessage: MessageSignedOut,
	})
}

/*
Me returns the identity carried by the current session.

GET /api/auth/me

Response:
  - 200: {user:{id,email,role}, expires_at}
  - 401: No valid session
*/
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	response := sessionResponse{
		User: sessionUser{
			ID:    claims.AccountID,
			Email: claims.Email,
			Role:  claims.Role,
		},
	}
	if claims.ExpiresAt != nil {
		response.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}

	respond.JSON(writer, http.StatusOK, response)
}

// startSession mints a token for account and attaches it as the session cookie.
func (handler *Handler) startSession(writer http.ResponseWriter, account *PublicAccount) error {
	token, err := handler.tokens.Sign(account.SessionIdentity())
	if err != nil {
		return apperr.Internal(err)
	}

	handler.cookie.Set(writer, token)
	return nil
}
