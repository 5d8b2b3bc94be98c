package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: Info, Format: FormatJSON, App: "isp-contracts", Output: &buf})

	l.With(map[string]any{"contract_id": "c1"}).Warn("render failed", map[string]any{"error": errors.New("boom")})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "render failed", entry["msg"])
	assert.Equal(t, "isp-contracts", entry["app"])
	assert.Equal(t, "c1", entry["contract_id"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_LevelFilterAndText(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: Warn, Output: &buf})

	l.Info("hidden", nil)
	assert.Zero(t, buf.Len())

	l.Error("shown", map[string]any{"b": 2, "a": 1})
	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "a=1 b=2 level=error msg=shown")
}

func TestParse(t *testing.T) {
	assert.Equal(t, Debug, ParseLevel("DEBUG"))
	assert.Equal(t, Warn, ParseLevel("warning"))
	assert.Equal(t, Info, ParseLevel("nope"))
	assert.Equal(t, FormatJSON, ParseFormat(" json "))
	assert.Equal(t, FormatText, ParseFormat(""))
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "json")
	l, ok := NewFromEnv().(*StdLogger)
	require.True(t, ok)
	assert.Equal(t, Error, l.level)
	assert.Equal(t, FormatJSON, l.format)
}

func TestContextPropagation(t *testing.T) {
	fallback := Nop()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))
	assert.NotNil(t, FromContext(context.Background(), nil))

	var buf bytes.Buffer
	reqLog := New(Options{Output: &buf})
	ctx := WithContext(context.Background(), reqLog)
	FromContext(ctx, fallback).Info("hello", nil)
	assert.Contains(t, buf.String(), "msg=hello")
}
