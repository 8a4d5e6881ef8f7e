package server

import (
	"testing"
	"time"

	"github.com/resoli/api.ask.resoli.dev/broadcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitEvent(t *testing.T, ch chan broadcast.Event) broadcast.Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast event")
		return broadcast.Event{}
	}
}

func TestGetQuestionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPoll(t, "demo")
	q := env.addQuestion(t, p.ID, false, "A", "B")

	resp := env.request(t, "GET", "/api/questions/"+q.ID.Hex(), nil, nil)
	require.Equal(t, 200, resp.StatusCode)

	out := struct {
		ID      string `json:"id"`
		Options []struct {
			Text string `json:"text"`
		} `json:"options"`
	}{}
	decode(t, resp, &out)
	assert.Equal(t, q.ID.Hex(), out.ID)
	assert.Len(t, out.Options, 2)

	resp = env.request(t, "GET", "/api/questions/not-an-id", nil, nil)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestVoteEndpoint(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPoll(t, "demo")
	q := env.addQuestion(t, p.ID, false, "A", "B")
	optA, optB := q.Options[0], q.Options[1]

	feed, err := env.coordinator.Subscribe("demo")
	require.NoError(t, err)

	resp := env.request(t, "POST", "/api/questions/"+q.ID.Hex()+"/vote",
		map[string]interface{}{"option_ids": []string{optA.ID.Hex()}}, nil)
	require.Equal(t, 200, resp.StatusCode)

	out := struct {
		Success bool             `json:"success"`
		Results map[string]int32 `json:"results"`
	}{}
	decode(t, resp, &out)
	assert.True(t, out.Success)
	assert.Equal(t, map[string]int32{optA.ID.Hex(): 1, optB.ID.Hex(): 0}, out.Results)

	// Every successful vote is broadcast to the poll channel.
	event := waitEvent(t, feed)
	assert.Equal(t, broadcast.EventVoteUpdate, event.Type)
	assert.Equal(t, q.ID.Hex(), event.QuestionID)
	assert.Equal(t, int32(1), event.Results[optA.ID.Hex()])
}

func TestVoteEndpointErrors(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPoll(t, "demo")
	q := env.addQuestion(t, p.ID, false, "A", "B")

	resp := env.request(t, "POST", "/api/questions/"+q.ID.Hex()+"/vote",
		map[string]interface{}{"option_ids": []string{}}, nil)
	assert.Equal(t, 400, resp.StatusCode)

	resp = env.request(t, "POST", "/api/questions/000000000000000000000000/vote",
		map[string]interface{}{"option_ids": []string{q.Options[0].ID.Hex()}}, nil)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestActivateAndDeactivateEndpoints(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPoll(t, "demo")
	q1 := env.addQuestion(t, p.ID, false, "A", "B")
	q2 := env.addQuestion(t, p.ID, false, "C", "D")

	feed, err := env.coordinator.Subscribe("demo")
	require.NoError(t, err)

	owner := map[string]string{headerPollPassword: "secret"}

	resp := env.request(t, "POST", "/api/questions/"+q1.ID.Hex()+"/activate", nil, nil)
	assert.Equal(t, 401, resp.StatusCode)

	resp = env.request(t, "POST", "/api/questions/"+q1.ID.Hex()+"/activate", nil, owner)
	require.Equal(t, 200, resp.StatusCode)

	event := waitEvent(t, feed)
	assert.Equal(t, broadcast.EventQuestionActivated, event.Type)
	assert.Equal(t, q1.ID.Hex(), event.QuestionID)

	// Switching the live question keeps the invariant.
	resp = env.request(t, "POST", "/api/questions/"+q2.ID.Hex()+"/activate", nil, owner)
	require.Equal(t, 200, resp.StatusCode)
	waitEvent(t, feed)

	got, err := env.service.GetPollByCode(testCtx, "demo")
	require.NoError(t, err)
	assert.False(t, got.Questions[0].IsActive)
	assert.True(t, got.Questions[1].IsActive)

	resp = env.request(t, "POST", "/api/questions/"+q2.ID.Hex()+"/deactivate", nil, owner)
	require.Equal(t, 200, resp.StatusCode)

	event = waitEvent(t, feed)
	assert.Equal(t, broadcast.EventQuestionDeactivated, event.Type)

	got, err = env.service.GetPollByCode(testCtx, "demo")
	require.NoError(t, err)
	for _, q := range got.Questions {
		assert.False(t, q.IsActive)
	}
}

func TestResetEndpoint(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPoll(t, "demo")
	q := env.addQuestion(t, p.ID, false, "A", "B")
	optA := q.Options[0]

	resp := env.request(t, "POST", "/api/questions/"+q.ID.Hex()+"/vote",
		map[string]interface{}{"option_ids": []string{optA.ID.Hex()}}, nil)
	require.Equal(t, 200, resp.StatusCode)

	feed, err := env.coordinator.Subscribe("demo")
	require.NoError(t, err)

	resp = env.request(t, "POST", "/api/questions/"+q.ID.Hex()+"/reset", nil,
		map[string]string{headerPollPassword: "secret"})
	require.Equal(t, 200, resp.StatusCode)

	event := waitEvent(t, feed)
	assert.Equal(t, broadcast.EventVoteUpdate, event.Type)
	assert.Equal(t, int32(0), event.Results[optA.ID.Hex()])

	results, err := env.service.GetResults(testCtx, q.ID)
	require.NoError(t, err)
	for _, count := range results {
		assert.Equal(t, int32(0), count)
	}
}

func TestResultsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPoll(t, "demo")
	q := env.addQuestion(t, p.ID, false, "A", "B")

	resp := env.request(t, "POST", "/api/questions/"+q.ID.Hex()+"/vote",
		map[string]interface{}{"option_ids": []string{q.Options[1].ID.Hex()}}, nil)
	require.Equal(t, 200, resp.StatusCode)

	resp = env.request(t, "GET", "/api/questions/"+q.ID.Hex()+"/results", nil, nil)
	require.Equal(t, 200, resp.StatusCode)

	out := map[string]int32{}
	decode(t, resp, &out)
	assert.Equal(t, map[string]int32{
		q.Options[0].ID.Hex(): 0,
		q.Options[1].ID.Hex(): 1,
	}, out)
}

func TestUpdateAndDeleteQuestionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPoll(t, "demo")
	q := env.addQuestion(t, p.ID, false, "A", "B")

	owner := map[string]string{headerPollPassword: "secret"}

	resp := env.request(t, "PUT", "/api/questions/"+q.ID.Hex(),
		map[string]interface{}{"title": "T", "content": "updated", "use_monospace": true}, owner)
	require.Equal(t, 200, resp.StatusCode)

	got, err := env.service.GetQuestion(testCtx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Content)
	assert.True(t, got.UseMonospace)

	resp = env.request(t, "DELETE", "/api/questions/"+q.ID.Hex(), nil, owner)
	require.Equal(t, 200, resp.StatusCode)

	resp = env.request(t, "GET", "/api/questions/"+q.ID.Hex(), nil, nil)
	assert.Equal(t, 404, resp.StatusCode)
}
