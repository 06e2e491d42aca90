package failure

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatusMapping(t *testing.T) {
	cases := map[Code]int{
		MissingParameter:                 http.StatusBadRequest,
		FacetNotFound:                    http.StatusBadRequest,
		FacetIncompatibleWithContentType: http.StatusBadRequest,
		ContextNotFound:                  http.StatusBadRequest,
		QueryExecutionError:              http.StatusInternalServerError,
		CacheError:                       http.StatusInternalServerError,
		GeneralError:                     http.StatusInternalServerError,
	}
	for code, status := range cases {
		e := New(code, nil)
		assert.Equal(t, status, e.Status, code)
		assert.NotEmpty(t, e.Message, code)
	}
}

func TestUserMessageHidesCodeOutsideDebug(t *testing.T) {
	e := New(FacetNotFound, nil)
	assert.NotContains(t, e.UserMessage(false), "facet_not_found")
	assert.Contains(t, e.UserMessage(true), "[facet_not_found]")
}

func TestFromWrapsUntypedErrors(t *testing.T) {
	cause := errors.New("boom")
	fe := From(fmt.Errorf("outer: %w", cause))
	assert.Equal(t, GeneralError, fe.Code)
	assert.ErrorIs(t, fe, cause)

	typed := New(ContextNotFound, nil).With("context", "x")
	assert.Same(t, typed, From(fmt.Errorf("wrapped: %w", typed)))
	assert.True(t, Is(fmt.Errorf("wrapped: %w", typed), ContextNotFound))
	assert.Nil(t, From(nil))
}

func TestLogIncludesCodeAndData(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Log(zap.New(core), "options failed", New(QueryExecutionError, errors.New("db down")).With("facet", "topic"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "query_execution_error", fields["code"])
	assert.Equal(t, "topic", fields["facet"])
	assert.Equal(t, zap.ErrorLevel, entry.Level)
}

func TestFromPanic(t *testing.T) {
	assert.Equal(t, GeneralError, FromPanic("x").Code)
	assert.ErrorContains(t, FromPanic(errors.New("nil map")), "nil map")
}
