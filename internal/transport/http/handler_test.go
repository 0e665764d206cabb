package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"assessment-service/internal/infra/memory"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewStore()
	if _, err := app.Seed(context.Background(), store, time.Now()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	defs := memory.NewDefinitionRepository(store, time.Minute)
	feed := app.NewActivityFeed(store, nil)
	exams := app.NewExamService(store, defs, feed, app.ExamOptions{DefaultCertificateValidityDays: 365})
	quizzes := app.NewQuizService(store, defs, feed)
	puzzles := app.NewPuzzleService(store, defs, memory.NewSessionStore(), feed)

	router := NewRouter(NewExamHandler(exams), NewPracticeHandler(quizzes, puzzles, feed), NewWSHandler(puzzles))
	srv := httptest.NewServer(WithMiddleware(router, nil))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, actor domain.Actor, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if actor.UserID != "" {
		req.Header.Set(headerUserID, actor.UserID)
		req.Header.Set(headerRole, string(actor.Role))
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, raw
}

func decodeError(t *testing.T, raw []byte) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return body
}

var (
	student    = domain.Actor{UserID: "student-1", Role: domain.RoleStudent}
	instructor = domain.Actor{UserID: app.DemoInstructorID, Role: domain.RoleInstructor}
)

func TestHealthAndIdentity(t *testing.T) {
	srv := newTestServer(t)

	status, raw := call(t, srv, http.MethodGet, "/healthz", domain.Actor{}, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", string(raw))

	status, raw = call(t, srv, http.MethodGet, "/api/activities", domain.Actor{}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", decodeError(t, raw).Code)

	status, _ = call(t, srv, http.MethodGet, "/api/activities", domain.Actor{UserID: "u1", Role: "Janitor"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestQuizOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	status, raw := call(t, srv, http.MethodPost, "/api/quizzes/"+app.DemoQuizID+"/attempts", student, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var attempt domain.QuizAttempt
	require.NoError(t, json.Unmarshal(raw, &attempt))

	answers := map[string]interface{}{"answers": []domain.AnswerSubmission{
		{QuestionID: "q1", OptionID: "o2"},
		{QuestionID: "q2", OptionID: "o2"},
	}}
	status, raw = call(t, srv, http.MethodPost, "/api/quiz-attempts/"+attempt.ID+"/answers", student, answers)
	require.Equal(t, http.StatusOK, status, string(raw))
	var result app.QuizResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 20, result.Attempt.Score)
	assert.True(t, result.Attempt.IsPassed)

	status, raw = call(t, srv, http.MethodPost, "/api/quiz-attempts/"+attempt.ID+"/answers", student, answers)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "attempt_completed", decodeError(t, raw).Code)

	status, raw = call(t, srv, http.MethodGet, "/api/activities?limit=5", student, nil)
	require.Equal(t, http.StatusOK, status)
	var feed []domain.Activity
	require.NoError(t, json.Unmarshal(raw, &feed))
	require.Len(t, feed, 1)
	assert.Equal(t, domain.ActivityQuizPassed, feed[0].Kind)
}

func TestExamGatesOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	start := "/api/exams/" + app.DemoExamID + "/attempts"

	status, raw := call(t, srv, http.MethodPost, start, student, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "verification_missing", decodeError(t, raw).Code)

	status, _ = call(t, srv, http.MethodPost, "/api/exams/"+app.DemoExamID+"/verifications", student,
		map[string]interface{}{"studentId": student.UserID, "verified": true})
	assert.Equal(t, http.StatusForbidden, status, "students cannot verify themselves")

	status, raw = call(t, srv, http.MethodPost, "/api/exams/"+app.DemoExamID+"/verifications", instructor,
		map[string]interface{}{"studentId": student.UserID, "verified": true})
	require.Equal(t, http.StatusOK, status, string(raw))

	status, raw = call(t, srv, http.MethodPost, start, student, nil)
	require.Equal(t, http.StatusCreated, status, string(raw))
	var view app.AttemptView
	require.NoError(t, json.Unmarshal(raw, &view))
	assert.Equal(t, 1, view.AttemptNumber)

	status, raw = call(t, srv, http.MethodPost, start, student, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_attempt", decodeError(t, raw).Code)

	status, raw = call(t, srv, http.MethodPost, "/api/exam-attempts/"+view.ID+"/answers", student, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	body := decodeError(t, raw)
	require.NotEmpty(t, body.Fields)
	assert.Equal(t, "questionId", body.Fields[0].Field)

	status, raw = call(t, srv, http.MethodPost, "/api/exam-attempts/"+view.ID+"/answers", student,
		app.AnswerInput{QuestionID: "exam-demo-q1", SelectedOptionID: "exam-demo-q1-a"})
	require.Equal(t, http.StatusCreated, status, string(raw))

	status, raw = call(t, srv, http.MethodPost, "/api/exam-attempts/"+view.ID+"/publish", instructor, nil)
	assert.Equal(t, http.StatusConflict, status, string(raw))
}

func TestUnknownPuzzleIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	status, raw := call(t, srv, http.MethodGet, "/api/puzzles/nope/leaderboard", student, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "puzzle_not_found", decodeError(t, raw).Code)
}

func TestWebSocketPuzzleFlow(t *testing.T) {
	srv := newTestServer(t)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/puzzles?gameId=logic-demo&userId=u1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the current leaderboard first.
	readNext(conn, t, "leaderboard")

	send := func(typ string, payload interface{}) {
		t.Helper()
		if err := conn.WriteJSON(map[string]interface{}{"type": typ, "payload": payload}); err != nil {
			t.Fatalf("write %s: %v", typ, err)
		}
	}

	send("hint", nil)
	_, payload := readNext(conn, t, "error")
	if payload["code"] != "validation_failed" {
		t.Fatalf("expected validation error before start, got %v", payload)
	}

	send("start", nil)
	_, payload = readNext(conn, t, "attempt")
	if payload["status"] != string(domain.PuzzleInProgress) {
		t.Fatalf("expected in-progress attempt, got %v", payload)
	}

	send("check", map[string]interface{}{"state": map[string]string{"alice": "cat", "bob": "gopher", "carol": "dog"}})

	checkSeen, boardSeen := false, false
	for i := 0; i < 4 && !(checkSeen && boardSeen); i++ {
		typ, payload := readNext(conn, t, "")
		switch typ {
		case "checkResult":
			if payload["solved"] != true {
				t.Fatalf("expected solved, got %v", payload)
			}
			checkSeen = true
		case "leaderboard":
			entries, _ := payload["entries"].([]interface{})
			if len(entries) == 1 {
				boardSeen = true
			}
		}
	}
	if !checkSeen || !boardSeen {
		t.Fatalf("expected checkResult and leaderboard, got checkResult=%v leaderboard=%v", checkSeen, boardSeen)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
