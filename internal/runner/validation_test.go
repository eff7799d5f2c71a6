package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netloom/flowengine/pkg/models"
)

func TestApplyConversion_None(t *testing.T) {
	out, err := applyConversion("", "raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", out)

	out, err = applyConversion("none", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestApplyConversion_Text(t *testing.T) {
	out, err := applyConversion("text", 3.5)
	require.NoError(t, err)
	assert.Equal(t, "3.5", out)
}

func TestApplyConversion_Int(t *testing.T) {
	out, err := applyConversion("int", "42")
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	out, err = applyConversion("int", 7.0)
	require.NoError(t, err)
	assert.Equal(t, 7, out)

	_, err = applyConversion("int", "not a number")
	assert.Error(t, err)
}

func TestApplyConversion_Float(t *testing.T) {
	out, err := applyConversion("float", "3.14")
	require.NoError(t, err)
	assert.Equal(t, 3.14, out)
}

func TestApplyConversion_JSON(t *testing.T) {
	out, err := applyConversion("json", `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, out)
}

func TestApplyConversion_UnknownMethod(t *testing.T) {
	_, err := applyConversion("bogus", "x")
	assert.Error(t, err)
}

func TestValidate_AppliesConversionBeforeContentMatch(t *testing.T) {
	v := models.Validation{
		Condition:    models.ValidationConditionSuccess,
		Section:      "count",
		ConversionMethod: "text",
		ContentMatch: "3",
	}
	matched, err := validate(v, true, map[string]any{"count": 3})
	require.NoError(t, err)
	assert.True(t, matched, "conversion_method=text must stringify the int section before content_match runs")
}

func TestValidate_ConversionErrorFailsValidation(t *testing.T) {
	v := models.Validation{
		Condition:    models.ValidationConditionSuccess,
		Section:      "count",
		ConversionMethod: "int",
		ContentMatch: "abc",
	}
	_, err := validate(v, true, map[string]any{"count": "not-a-number"})
	assert.Error(t, err)
}
