package result

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stdResult struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

func (r stdResult) Serialize() ([]byte, error) { return json.Marshal(r) }

type pointerResult struct {
	Count int `json:"count"`
}

func (r *pointerResult) Serialize() ([]byte, error) { return json.Marshal(r) }

// csvResult 使用自定义格式而非 JSON
type csvResult struct {
	Fields []string
}

func (r csvResult) Serialize() ([]byte, error) { return []byte(strings.Join(r.Fields, ",")), nil }

func (r *csvResult) Deserialize(data []byte) error {
	r.Fields = strings.Split(string(data), ",")
	return nil
}

func TestKindOf_ValueType(t *testing.T) {
	kind := KindOf[stdResult]()
	data, err := stdResult{Stdout: "1-stdout", Stderr: "1-stderr"}.Serialize()
	require.NoError(t, err)

	res, err := kind.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, stdResult{Stdout: "1-stdout", Stderr: "1-stderr"}, res)
	assert.Equal(t, "result.stdResult", kind.Name())
}

func TestKindOf_PointerType(t *testing.T) {
	kind := KindOf[*pointerResult]()
	res, err := kind.Deserialize([]byte(`{"count":3}`))
	require.NoError(t, err)

	typed, ok := res.(*pointerResult)
	require.True(t, ok)
	assert.Equal(t, 3, typed.Count)
}

func TestKindOf_CustomDeserializer(t *testing.T) {
	res, err := KindOf[csvResult]().Deserialize([]byte("a,b,c"))
	require.NoError(t, err)
	assert.Equal(t, csvResult{Fields: []string{"a", "b", "c"}}, res)
}

func TestKindOf_InvalidPayload(t *testing.T) {
	_, err := KindOf[stdResult]().Deserialize([]byte("not-json"))
	assert.Error(t, err)
}

func TestAs(t *testing.T) {
	deps := map[string]Result{
		"1": stdResult{Stdout: "ok"},
		"2": Text{Value: "hello"},
	}

	got, err := As[stdResult](deps, "1")
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Stdout)

	_, err = As[stdResult](deps, "2")
	assert.ErrorIs(t, err, ErrUnexpectedKind)

	_, err = As[stdResult](deps, "9")
	assert.ErrorIs(t, err, ErrMissing)
}

func TestEmpty_RoundTrip(t *testing.T) {
	data, err := Empty{}.Serialize()
	require.NoError(t, err)
	res, err := KindOf[Empty]().Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, Empty{}, res)
}
