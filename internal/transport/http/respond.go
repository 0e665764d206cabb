package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"assessment-service/internal/domain"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

const (
	headerUserID = "X-User-ID"
	headerRole   = "X-User-Role"
)

type errorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  []domain.FieldError `json:"fields,omitempty"`
}

var errUnauthenticated = errors.New("missing caller identity")

// actorFrom reads the identity resolved by the gateway in front of the service.
func actorFrom(r *http.Request) (domain.Actor, error) {
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		return domain.Actor{}, errUnauthenticated
	}
	role := domain.Role(r.Header.Get(headerRole))
	switch role {
	case "":
		role = domain.RoleStudent
	case domain.RoleStudent, domain.RoleInstructor, domain.RoleAdmin:
	default:
		return domain.Actor{}, domain.NewValidationError(errors.New("unknown role"),
			domain.FieldError{Field: headerRole, Error: "must be Student, Instructor or Admin"})
	}
	return domain.Actor{UserID: userID, Role: role}, nil
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return domain.NewValidationError(errors.New("empty body"))
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidationError(errors.Wrap(err, "decode request body"),
			domain.FieldError{Field: "body", Error: err.Error()})
	}
	return nil
}

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Warningf("write response: %v", err)
	}
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindTimeGate, domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindPaymentRequired:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func errorBodyFor(err error) (int, errorBody) {
	if errors.Is(err, errUnauthenticated) {
		return http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: err.Error()}
	}
	kind := domain.KindOf(err)
	body := errorBody{Code: domain.CodeOf(err), Message: err.Error()}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	if kind == domain.KindInternal {
		glog.Errorf("internal error: %+v", err)
		body.Message = "internal error"
	}
	return statusFor(kind), body
}

func writeError(w http.ResponseWriter, err error) {
	status, body := errorBodyFor(err)
	writeJSON(w, status, body)
}
