package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"1000001":    "1000001\tcourse\tcampus A",
		"1199999":    "1199999\tcourse\tcampus B",
		"1100000001": "1100000001\tuser\tstudent",
		"1300000000": "1300000000\tuser\tteacher",
		"42":         "42\tinvalid",
	}
	for raw, want := range cases {
		got, err := classify(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := classify("abc")
	assert.Error(t, err)
}

func TestClassifyCommandPrintsEachID(t *testing.T) {
	var out bytes.Buffer
	classifyCmd.SetOut(&out)
	require.NoError(t, classifyCmd.RunE(classifyCmd, []string{"1200005", "1000000001"}))
	assert.Equal(t, "1200005\tcourse\tcampus C\n1000000001\tuser\tadmin\n", out.String())
}
