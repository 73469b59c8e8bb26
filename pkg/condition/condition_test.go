package condition

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaas/flowengine/pkg/domain"
)

type fakeClassifier struct {
	score float64
	err   error
}

func (f fakeClassifier) Score(context.Context, string) (float64, error) { return f.score, f.err }

func cond(t domain.ConditionType, value string) domain.ConditionData {
	return domain.ConditionData{ConditionType: t, ConditionValue: value, ToxicitySensitivity: domain.DefaultToxicitySensitivity}
}

func TestEvaluate(t *testing.T) {
	ev := New()
	vars := map[string]string{"expected": "yes"}

	tests := []struct {
		name  string
		cond  domain.ConditionData
		input string
		want  bool
	}{
		{"equals", cond(domain.ConditionEquals, "hello"), "hello", true},
		{"equals is case sensitive", cond(domain.ConditionEquals, "hello"), "Hello", false},
		{"equals interpolates value", cond(domain.ConditionEquals, "{{expected}}"), "yes", true},
		{"contains", cond(domain.ConditionContains, "ell"), "hello", true},
		{"contains miss", cond(domain.ConditionContains, "xyz"), "hello", false},
		{"number integer", cond(domain.ConditionNumber, ""), "42", true},
		{"number decimal negative", cond(domain.ConditionNumber, ""), "-3.14", true},
		{"number rejects text", cond(domain.ConditionNumber, ""), "abc", false},
		{"number trailing dot", cond(domain.ConditionNumber, ""), "5.", true},
		{"number leading plus", cond(domain.ConditionNumber, ""), "+5", true},
		{"number leading dot", cond(domain.ConditionNumber, ""), ".5", true},
		{"number exponent", cond(domain.ConditionNumber, ""), "1e3", true},
		{"number padded", cond(domain.ConditionNumber, ""), " 42 ", true},
		{"number rejects NaN", cond(domain.ConditionNumber, ""), "NaN", false},
		{"number rejects Inf", cond(domain.ConditionNumber, ""), "-Inf", false},
		{"number rejects overflow", cond(domain.ConditionNumber, ""), "1e999", false},
		{"number rejects empty", cond(domain.ConditionNumber, ""), "", false},
		{"email", cond(domain.ConditionEmail, ""), "ann@example.com", true},
		{"email invalid", cond(domain.ConditionEmail, ""), "ann@", false},
		{"phone with plus", cond(domain.ConditionPhone, ""), "+4712345678", true},
		{"phone with separators", cond(domain.ConditionPhone, ""), "+1 (555) 123-4567", true},
		{"phone with dots", cond(domain.ConditionPhone, ""), "555.123.4567", true},
		{"phone too short", cond(domain.ConditionPhone, ""), "12345", false},
		{"phone too long", cond(domain.ConditionPhone, ""), "1234567890123456", false},
		{"date iso", cond(domain.ConditionDate, ""), "2024-03-01", true},
		{"date day first", cond(domain.ConditionDate, ""), "01.03.2024", true},
		{"date month name", cond(domain.ConditionDate, ""), "March 1, 2024", true},
		{"date invalid", cond(domain.ConditionDate, ""), "tomorrow-ish", false},
		{"regex", cond(domain.ConditionRegex, `^\d{3}$`), "123", true},
		{"regex miss", cond(domain.ConditionRegex, `^\d{3}$`), "1234", false},
		{"regex js literal with flag", cond(domain.ConditionRegex, `/^hello$/i`), "HELLO", true},
		{"expression", cond(domain.ConditionExpression, `len(input) > 3 && vars["expected"] == "yes"`), "abcd", true},
		{"expression false", cond(domain.ConditionExpression, `input == "x"`), "y", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ev.Evaluate(context.Background(), tt.cond, tt.input, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Matched)
		})
	}
}

func TestEvaluate_OutputIsAlwaysTrueOrFalse(t *testing.T) {
	ev := New(WithClassifier(fakeClassifier{err: errors.New("down")}))
	types := []domain.ConditionType{
		domain.ConditionEquals, domain.ConditionContains, domain.ConditionNumber, domain.ConditionEmail,
		domain.ConditionPhone, domain.ConditionDate, domain.ConditionRegex, domain.ConditionToxicity,
		domain.ConditionExpression, "bogus",
	}
	values := []string{"", "(", "[a-", `input ==`, "x"}
	inputs := []string{"", "x", "42", "  ", "éé"}

	for _, typ := range types {
		for _, v := range values {
			for _, in := range inputs {
				res, _ := ev.Evaluate(context.Background(), cond(typ, v), in, nil)
				label := res.Label()
				assert.True(t, label == "true" || label == "false", "type=%s value=%q input=%q gave %q", typ, v, in, label)
			}
		}
	}
}

func TestEvaluate_InvalidRegexFailsClosed(t *testing.T) {
	res, err := New().Evaluate(context.Background(), cond(domain.ConditionRegex, "(unclosed"), "anything", nil)

	assert.False(t, res.Matched)
	assert.Equal(t, "false", res.Label())
	var cfg *domain.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Contains(t, cfg.Reason, "invalid regex")
}

func TestEvaluate_InvalidExpression(t *testing.T) {
	res, err := New().Evaluate(context.Background(), cond(domain.ConditionExpression, "input +"), "x", nil)

	assert.False(t, res.Matched)
	var cfg *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfg)
}

func TestEvaluate_Toxicity(t *testing.T) {
	ctx := context.Background()

	t.Run("above threshold", func(t *testing.T) {
		c := cond(domain.ConditionToxicity, "")
		c.ToxicitySensitivity = 0.7
		res, err := New(WithClassifier(fakeClassifier{score: 0.9})).Evaluate(ctx, c, "you are awful", nil)
		require.NoError(t, err)
		assert.True(t, res.Matched)
		assert.Equal(t, "0.900", res.Detail)
	})

	t.Run("below threshold", func(t *testing.T) {
		c := cond(domain.ConditionToxicity, "")
		c.ToxicitySensitivity = 0.7
		res, err := New(WithClassifier(fakeClassifier{score: 0.2})).Evaluate(ctx, c, "have a nice day", nil)
		require.NoError(t, err)
		assert.False(t, res.Matched)
	})

	t.Run("no classifier", func(t *testing.T) {
		res, err := New().Evaluate(ctx, cond(domain.ConditionToxicity, ""), "hi", nil)
		assert.False(t, res.Matched)
		var se *domain.SideEffectError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, domain.EffectClassifier, se.Effect)
	})
}

func TestSensitivityBand(t *testing.T) {
	assert.Equal(t, "low", SensitivityBand(0.1))
	assert.Equal(t, "mild", SensitivityBand(0.5))
	assert.Equal(t, "high", SensitivityBand(0.9))
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("2024-02-29")
	require.True(t, ok)
	assert.Equal(t, 29, d.Day())

	_, ok = ParseDate("2023-02-29")
	assert.False(t, ok)

	_, ok = ParseDate("")
	assert.False(t, ok)
}
