package http

import (
	"context"
	"net/http"
	"strings"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"github.com/golang/glog"
	"github.com/gorilla/mux"
)

type ExamHandler struct {
	service *app.ExamService
}

func NewExamHandler(service *app.ExamService) *ExamHandler {
	return &ExamHandler{service: service}
}

func (h *ExamHandler) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/exams/{examId}/verifications", h.verify).Methods(http.MethodPost)
	r.HandleFunc("/exams/{examId}/attempts", h.startAttempt).Methods(http.MethodPost)
	r.HandleFunc("/exams/{examId}/attempts", h.studentAttempts).Methods(http.MethodGet)
	r.HandleFunc("/exams/{examId}/attempts/all", h.examAttempts).Methods(http.MethodGet)
	r.HandleFunc("/exams/{examId}/internal-marks/{studentId}", h.assignInternalMarks).Methods(http.MethodPut)
	r.HandleFunc("/exams/{examId}/missed-requests", h.requestMissedExam).Methods(http.MethodPost)
	r.HandleFunc("/exams/{examId}/missed-requests", h.pendingMissedRequests).Methods(http.MethodGet)
	r.HandleFunc("/missed-requests/{requestId}/review", h.reviewMissedRequest).Methods(http.MethodPost)
	r.HandleFunc("/schedules", h.assignSchedule).Methods(http.MethodPost)
	r.HandleFunc("/payments", h.recordPayment).Methods(http.MethodPost)

	r.HandleFunc("/exam-attempts/{attemptId}", h.attempt).Methods(http.MethodGet)
	r.HandleFunc("/exam-attempts/{attemptId}/parts/{part}/start", h.startPart).Methods(http.MethodPost)
	r.HandleFunc("/exam-attempts/{attemptId}/parts/{part}/submit", h.submitPart).Methods(http.MethodPost)
	r.HandleFunc("/exam-attempts/{attemptId}/answers", h.submitAnswer).Methods(http.MethodPost)
	r.HandleFunc("/exam-attempts/{attemptId}/grade", h.gradePartB).Methods(http.MethodPost)
	r.HandleFunc("/exam-attempts/{attemptId}/rescore", h.rescore).Methods(http.MethodPost)
	r.HandleFunc("/exam-attempts/{attemptId}/publish", h.publish).Methods(http.MethodPost)
	r.HandleFunc("/exam-attempts/{attemptId}/certificate", h.issueCertificate).Methods(http.MethodPost)
	glog.V(2).Infof("set up routes for exam handler")
}

type verifyRequest struct {
	StudentID string `json:"studentId"`
	Verified  bool   `json:"verified"`
}

type scoreRequest struct {
	Score float64 `json:"score"`
}

type missedRequestBody struct {
	Reason string `json:"reason"`
}

type reviewRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

func (h *ExamHandler) verify(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	v, err := h.service.VerifyStudent(r.Context(), actor, mux.Vars(r)["examId"], req.StudentID, req.Verified)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *ExamHandler) startAttempt(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.service.StartAttempt(r.Context(), actor, mux.Vars(r)["examId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *ExamHandler) studentAttempts(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	attempts, err := h.service.StudentAttempts(r.Context(), actor, mux.Vars(r)["examId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *ExamHandler) examAttempts(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	attempts, err := h.service.ExamAttempts(r.Context(), actor, mux.Vars(r)["examId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *ExamHandler) assignInternalMarks(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req scoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	mark, err := h.service.AssignInternalMarks(r.Context(), actor, vars["examId"], vars["studentId"], req.Score)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mark)
}

func (h *ExamHandler) requestMissedExam(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req missedRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	mr, err := h.service.RequestMissedExam(r.Context(), actor, mux.Vars(r)["examId"], req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mr)
}

func (h *ExamHandler) pendingMissedRequests(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	requests, err := h.service.PendingMissedRequests(r.Context(), actor, mux.Vars(r)["examId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *ExamHandler) reviewMissedRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	mr, err := h.service.ReviewMissedRequest(r.Context(), actor, mux.Vars(r)["requestId"], req.Approve, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mr)
}

func (h *ExamHandler) assignSchedule(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in app.ScheduleInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	s, err := h.service.AssignSchedule(r.Context(), actor, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *ExamHandler) recordPayment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var p domain.Payment
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	p, err = h.service.RecordPayment(r.Context(), actor, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ExamHandler) attempt(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.service.Attempt(r.Context(), actor, mux.Vars(r)["attemptId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ExamHandler) startPart(w http.ResponseWriter, r *http.Request) {
	h.partStep(w, r, h.service.StartPart)
}

func (h *ExamHandler) submitPart(w http.ResponseWriter, r *http.Request) {
	h.partStep(w, r, h.service.SubmitPart)
}

func (h *ExamHandler) partStep(w http.ResponseWriter, r *http.Request,
	step func(ctx context.Context, actor domain.Actor, attemptID string, part domain.Part) (app.AttemptView, error)) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	view, err := step(r.Context(), actor, vars["attemptId"], domain.Part(strings.ToUpper(vars["part"])))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ExamHandler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in app.AnswerInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	answer, err := h.service.SubmitAnswer(r.Context(), actor, mux.Vars(r)["attemptId"], in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, answer)
}

func (h *ExamHandler) gradePartB(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req scoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.service.GradePartB(r.Context(), actor, mux.Vars(r)["attemptId"], req.Score)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ExamHandler) rescore(w http.ResponseWriter, r *http.Request) {
	h.staffStep(w, r, h.service.Rescore)
}

func (h *ExamHandler) publish(w http.ResponseWriter, r *http.Request) {
	h.staffStep(w, r, h.service.PublishResult)
}

func (h *ExamHandler) staffStep(w http.ResponseWriter, r *http.Request,
	step func(ctx context.Context, actor domain.Actor, attemptID string) (app.AttemptView, error)) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := step(r.Context(), actor, mux.Vars(r)["attemptId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ExamHandler) issueCertificate(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cert, err := h.service.IssueCertificate(r.Context(), actor, mux.Vars(r)["attemptId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cert)
}
