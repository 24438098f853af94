package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncrementRequests()
	mc.IncrementRequests()
	mc.IncrementErrors()
	for i := 1; i <= 100; i++ {
		mc.AddOperationLatency("vote_question", time.Duration(i)*time.Millisecond)
	}

	snap := mc.Snapshot()
	assert.Equal(t, uint64(2), snap.Requests)
	assert.Equal(t, uint64(1), snap.Errors)

	stats := snap.Operations["vote_question"]
	assert.Equal(t, 100, stats.Count)
	assert.Equal(t, 96*time.Millisecond, stats.P95)
	assert.Equal(t, 50500*time.Microsecond, stats.Avg)
}

func TestMetricsSamplesAreBounded(t *testing.T) {
	mc := NewMetricsCollector()
	for i := 0; i < maxSamples+10; i++ {
		mc.AddOperationLatency("list_questions", time.Millisecond)
	}
	assert.Equal(t, maxSamples, mc.Snapshot().Operations["list_questions"].Count)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NewQuestionNotFoundError("q1")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(NewInvalidInputError("direction")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(NewAppError(ErrConflict, "lost race", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))

	wrapped := fmt.Errorf("actor: %w", NewAnswerNotFoundError("a1"))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
	assert.True(t, IsErrorCode(wrapped, ErrNotFound))
}
