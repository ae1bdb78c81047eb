package sl_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
)

func TestErr_ReturnsCorrectAttr(t *testing.T) {
	attr := sl.Err(errors.New("card declined"))

	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, slog.StringValue("card declined"), attr.Value)
}

func TestErr_NilError(t *testing.T) {
	assert.NotPanics(t, func() {
		attr := sl.Err(nil)
		assert.Equal(t, "", attr.Value.String())
	})
}

func TestOp(t *testing.T) {
	attr := sl.Op("orchestrator.Resume")

	assert.Equal(t, "op", attr.Key)
	assert.Equal(t, "orchestrator.Resume", attr.Value.String())
}
