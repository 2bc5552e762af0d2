package dbtypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONValue(t *testing.T) {
	v, err := JSON(`{"Body":{}}`).Value()
	require.NoError(t, err)
	require.Equal(t, `{"Body":{}}`, v)

	v, err = JSON(nil).Value()
	require.NoError(t, err)
	require.Nil(t, v)

	_, err = JSON(`{broken`).Value()
	require.Error(t, err)
}

func TestJSONScan(t *testing.T) {
	var j JSON
	require.NoError(t, j.Scan([]byte(`{"a":1}`)))
	require.JSONEq(t, `{"a":1}`, string(j))

	require.NoError(t, j.Scan(`[1]`))
	require.Equal(t, `[1]`, string(j))

	require.NoError(t, j.Scan(nil))
	require.Nil(t, j)

	require.Error(t, j.Scan(42))
}
