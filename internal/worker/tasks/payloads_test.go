package tasks

import (
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTurnTaskRoundTrip(t *testing.T) {
	in := RunTurnPayload{UserID: "u1", ConversationID: "c1", Message: "hi", TraceID: "t1"}
	task, err := NewRunTurnTask(in)
	require.NoError(t, err)
	assert.Equal(t, TypeRunTurn, task.Type())

	out, err := ParseRunTurnPayload(task)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNewRunTurnTaskValidates(t *testing.T) {
	_, err := NewRunTurnTask(RunTurnPayload{UserID: "u1", Message: "hi"})
	assert.Error(t, err)

	_, err = ParseRunTurnPayload(asynq.NewTask(TypeRunTurn, []byte(`{"user_id":"u1"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
