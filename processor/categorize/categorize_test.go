package categorize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
)

func TestCategorise_DropShortCircuits(t *testing.T) {
	c := New(RuleSet{
		Enable: true,
		Rules: []Rule{
			{LogLevel: []string{"ERROR"}, Filter: []Filter{{Type: "sw", Value: "Failed"}}, Action: "drop"},
			{LogLevel: []string{"ERROR"}, Filter: []Filter{{Type: "so", Value: "connect"}}, Action: "categorise",
				Category: []event.Category{{Name: "net", Value: "x"}}},
		},
	}, nil)

	res, err := c.Categorise("ERROR", "Failed to connect")
	require.NoError(t, err)
	assert.Equal(t, []event.Category{}, res.Category)
	assert.Equal(t, ActionTakenDropped, res.ActionTaken)
	assert.True(t, res.Dropped())
}

func TestCategorise_DropAfterCategoriseStillDrops(t *testing.T) {
	c := New(RuleSet{
		Rules: []Rule{
			{LogLevel: []string{"WARN"}, Filter: []Filter{{Type: "so", Value: "disk"}}, Action: "categorise",
				Category: []event.Category{{Name: "infra", Value: "disk"}}},
			{LogLevel: []string{"WARN"}, Filter: []Filter{{Type: "ew", Value: "ignored"}}, Action: "drop"},
		},
	}, nil)

	res, err := c.Categorise("warn", "disk warning ignored")
	require.NoError(t, err)
	assert.True(t, res.Dropped())
	assert.Empty(t, res.Category)
}

func TestCategorise_UnionWithoutDuplicates(t *testing.T) {
	shared := event.Category{Name: "qs_log_category", Value: "unknown"}
	c := New(RuleSet{
		Rules: []Rule{
			{LogLevel: []string{"WARN", "ERROR"}, Filter: []Filter{{Type: "startsWith", Value: "Proxy"}}, Action: "categorise",
				Category: []event.Category{shared, {Name: "service", Value: "proxy"}}},
			{LogLevel: []string{"error"}, Filter: []Filter{{Type: "contains", Value: "timeout"}}, Action: "categorize",
				Category: []event.Category{shared, {Name: "kind", Value: "timeout"}}},
		},
	}, nil)

	res, err := c.Categorise("ERROR", "Proxy request timeout")
	require.NoError(t, err)
	assert.Equal(t, ActionTakenCategorised, res.ActionTaken)
	assert.Equal(t, []event.Category{
		shared,
		{Name: "service", Value: "proxy"},
		{Name: "kind", Value: "timeout"},
	}, res.Category)
}

func TestCategorise_Default(t *testing.T) {
	def := event.Category{Name: "qs_log_category", Value: "unknown"}
	c := New(RuleSet{
		Rules: []Rule{
			{LogLevel: []string{"ERROR"}, Filter: []Filter{{Type: "sw", Value: "X"}}, Action: "categorise",
				Category: []event.Category{{Name: "a", Value: "b"}}},
		},
		RuleDefault: Default{Enable: true, Category: []event.Category{def}},
	}, nil)

	res, err := c.Categorise("INFO", "anything")
	require.NoError(t, err)
	assert.Equal(t, []event.Category{def}, res.Category)

	res, err = c.Categorise("ERROR", "X marks")
	require.NoError(t, err)
	assert.Equal(t, []event.Category{{Name: "a", Value: "b"}}, res.Category)
}

func TestCategorise_FilterIsCaseSensitive(t *testing.T) {
	c := New(RuleSet{
		Rules: []Rule{
			{LogLevel: []string{"ERROR"}, Filter: []Filter{{Type: "sw", Value: "failed"}}, Action: "drop"},
		},
	}, nil)

	res, err := c.Categorise("ERROR", "Failed to connect")
	require.NoError(t, err)
	assert.False(t, res.Dropped())
}

func TestCategorise_UnknownFilterTypeIgnored(t *testing.T) {
	c := New(RuleSet{
		Rules: []Rule{
			{LogLevel: []string{"ERROR"}, Filter: []Filter{{Type: "regex", Value: ".*"}, {Type: "so", Value: "boom"}}, Action: "drop"},
		},
	}, nil)

	res, err := c.Categorise("ERROR", "no match here")
	require.NoError(t, err)
	assert.False(t, res.Dropped())

	res, err = c.Categorise("ERROR", "boom")
	require.NoError(t, err)
	assert.True(t, res.Dropped())
}

func TestCategorise_MalformedAction(t *testing.T) {
	c := New(RuleSet{
		Rules: []Rule{
			{LogLevel: []string{"ERROR"}, Filter: []Filter{{Type: "so", Value: "x"}}, Action: "explode"},
		},
	}, nil)

	_, err := c.Categorise("ERROR", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMalformedRule)
}

func TestCategorise_NoRules(t *testing.T) {
	res, err := New(RuleSet{}, nil).Categorise("ERROR", "x")
	require.NoError(t, err)
	assert.Empty(t, res.Category)
	assert.Equal(t, ActionTakenCategorised, res.ActionTaken)
}

func TestRuleSet_Validate(t *testing.T) {
	ok := RuleSet{Rules: []Rule{{Action: "Categorize"}, {Action: "drop"}}}
	assert.NoError(t, ok.Validate())

	bad := RuleSet{Rules: []Rule{{Action: "drop"}, {Description: "typo", Action: "dorp"}}}
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMalformedRule)
	assert.Contains(t, err.Error(), "rule 1 (typo)")
}
