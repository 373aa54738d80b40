package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pixelnest/gallery/internal/response"
	"github.com/pixelnest/gallery/internal/session"
)

// Handler holds HTTP handlers for auth endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new auth Handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, validate: validator.New(), logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"    validate:"required,email"       example:"ada@example.com"`
	Password string `json:"password" validate:"required,min=8,max=72" example:"correct horse"`
}

type sessionData struct {
	Token     string   `json:"token"     example:"eyJhbGci..."`
	ExpiresAt string   `json:"expiresAt" example:"2026-03-06T14:48:34Z"`
	User      userBody `json:"user"`
}

type userBody struct {
	ID        string `json:"id"        example:"e7eedc79-0707-4fe4-8734-526b7ef13a7b"`
	Email     string `json:"email"     example:"ada@example.com"`
	CreatedAt string `json:"createdAt" example:"2026-02-27T14:48:34Z"`
}

// SignUp godoc
//
//	@Summary		Sign up
//	@Description	Create an account with email and password and open a session.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		credentialsRequest	true	"Credentials"
//	@Success		201		{object}	response.Envelope{data=sessionData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		409		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/signup [post]
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	result, err := h.svc.SignUp(r.Context(), req.Email, req.Password)
	if errors.Is(err, ErrEmailTaken) {
		response.Conflict(w, "email already registered")
		return
	}
	if err != nil {
		h.logger.Error("sign up failed", slog.String("error", err.Error()))
		response.InternalError(w)
		return
	}

	response.Created(w, toSessionData(result))
}

// SignIn godoc
//
//	@Summary		Sign in
//	@Description	Exchange email and password for a bearer token.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		credentialsRequest	true	"Credentials"
//	@Success		200		{object}	response.Envelope{data=sessionData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/signin [post]
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	result, err := h.svc.SignIn(r.Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		response.Unauthorized(w, "invalid email or password")
		return
	}
	if err != nil {
		h.logger.Error("sign in failed", slog.String("error", err.Error()))
		response.InternalError(w)
		return
	}

	response.OK(w, toSessionData(result))
}

// SignOut godoc
//
//	@Summary		Sign out
//	@Description	End the current session. The token stops working immediately.
//	@Tags			auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/auth/signout [post]
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	id := session.FromContext(r.Context())
	if id == nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	if err := h.svc.SignOut(r.Context(), id); err != nil {
		h.logger.Error("sign out failed", slog.String("error", err.Error()))
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]bool{"success": true})
}

// Session godoc
//
//	@Summary		Current session
//	@Description	Return the account behind the bearer token.
//	@Tags			auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=userBody}
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/auth/session [get]
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	id := session.FromContext(r.Context())
	if id == nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	u, err := h.svc.CurrentUser(r.Context(), id)
	if err != nil {
		h.logger.Error("load current user failed", slog.String("error", err.Error()))
		response.InternalError(w)
		return
	}

	response.OK(w, userBody{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339)})
}

func (h *Handler) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, validationMessage(err))
		return req, false
	}
	return req, true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return "email and password are required"
	case "email":
		return "invalid email address"
	case "min":
		return "password must be at least 8 characters"
	case "max":
		return "password must be at most 72 characters"
	default:
		return "invalid " + fe.Field()
	}
}

func toSessionData(r *Result) sessionData {
	return sessionData{
		Token:     r.Token,
		ExpiresAt: r.ExpiresAt.UTC().Format(time.RFC3339),
		User: userBody{
			ID:        r.User.ID,
			Email:     r.User.Email,
			CreatedAt: r.User.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
}
