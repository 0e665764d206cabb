package http

import (
	"encoding/json"
	"net/http"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"github.com/golang/glog"
	"github.com/gorilla/mux"
)

// PracticeHandler serves quizzes, puzzles and the activity feed.
type PracticeHandler struct {
	quizzes *app.QuizService
	puzzles *app.PuzzleService
	feed    *app.ActivityFeed
}

func NewPracticeHandler(quizzes *app.QuizService, puzzles *app.PuzzleService, feed *app.ActivityFeed) *PracticeHandler {
	return &PracticeHandler{quizzes: quizzes, puzzles: puzzles, feed: feed}
}

func (h *PracticeHandler) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/quizzes/{quizId}/attempts", h.startQuiz).Methods(http.MethodPost)
	r.HandleFunc("/quiz-attempts/{attemptId}", h.quizResult).Methods(http.MethodGet)
	r.HandleFunc("/quiz-attempts/{attemptId}/answers", h.submitQuiz).Methods(http.MethodPost)

	r.HandleFunc("/puzzles/{gameId}/attempts", h.startPuzzle).Methods(http.MethodPost)
	r.HandleFunc("/puzzles/{gameId}/leaderboard", h.leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/puzzle-attempts/{attemptId}", h.puzzleAttempt).Methods(http.MethodGet)
	r.HandleFunc("/puzzle-attempts/{attemptId}/moves", h.move).Methods(http.MethodPost)
	r.HandleFunc("/puzzle-attempts/{attemptId}/moves", h.moves).Methods(http.MethodGet)
	r.HandleFunc("/puzzle-attempts/{attemptId}/check", h.check).Methods(http.MethodPost)
	r.HandleFunc("/puzzle-attempts/{attemptId}/hint", h.hint).Methods(http.MethodPost)
	r.HandleFunc("/puzzle-attempts/{attemptId}/abandon", h.abandon).Methods(http.MethodPost)

	r.HandleFunc("/activities", h.activities).Methods(http.MethodGet)
	glog.V(2).Infof("set up routes for practice handler")
}

type quizAnswersRequest struct {
	Answers []domain.AnswerSubmission `json:"answers"`
}

type checkRequest struct {
	State json.RawMessage `json:"state"`
}

func (h *PracticeHandler) startQuiz(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	attempt, err := h.quizzes.Start(r.Context(), actor, mux.Vars(r)["quizId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *PracticeHandler) quizResult(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.quizzes.Result(r.Context(), actor, mux.Vars(r)["attemptId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PracticeHandler) submitQuiz(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req quizAnswersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.quizzes.Submit(r.Context(), actor, mux.Vars(r)["attemptId"], req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PracticeHandler) startPuzzle(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.puzzles.Start(r.Context(), actor, mux.Vars(r)["gameId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PracticeHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.puzzles.Leaderboard(r.Context(), mux.Vars(r)["gameId"], queryInt(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *PracticeHandler) puzzleAttempt(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.puzzles.Attempt(r.Context(), actor, mux.Vars(r)["attemptId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PracticeHandler) move(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in app.MoveInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.puzzles.Move(r.Context(), actor, mux.Vars(r)["attemptId"], in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PracticeHandler) moves(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	moves, err := h.puzzles.Moves(r.Context(), actor, mux.Vars(r)["attemptId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moves)
}

func (h *PracticeHandler) check(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req checkRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	result, err := h.puzzles.CheckSolution(r.Context(), actor, mux.Vars(r)["attemptId"], req.State)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PracticeHandler) hint(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.puzzles.Hint(r.Context(), actor, mux.Vars(r)["attemptId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PracticeHandler) abandon(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.puzzles.Abandon(r.Context(), actor, mux.Vars(r)["attemptId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PracticeHandler) activities(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.feed.List(r.Context(), actor, queryInt(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
